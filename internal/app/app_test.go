package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/config"
	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Kafka.Enabled = false
	cfg.Pricing.RatesFile = ""
	cfg.Observability.LogLevel = "error"
	return cfg
}

func TestApplication_Lifecycle(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	assert.False(t, a.Ready())

	require.NoError(t, a.Start())
	assert.True(t, a.Ready())
	assert.False(t, a.StartupTime.IsZero())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.False(t, a.Ready())
}

func TestApplication_ShutdownExportsLiveSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Export.APIKey = ""
	a, err := New(cfg)
	require.NoError(t, err)

	_, err = a.Manager.Handle(context.Background(), models.Envelope{
		SessionID: "live", Type: models.EventConversationItem, Role: models.RoleUser, Text: "hello",
	})
	require.NoError(t, err)
	require.Len(t, a.Manager.IDs(), 1)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Empty(t, a.Manager.IDs())
}

func TestApplication_RateCard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  gpt-4o:\n    input_per_million: 5\n    output_per_million: 15\n"), 0o600))

	cfg := testConfig()
	cfg.Pricing.RatesFile = path
	_, err := New(cfg)
	require.NoError(t, err)

	cfg.Pricing.RatesFile = filepath.Join(dir, "missing.yaml")
	_, err = New(cfg)
	assert.Error(t, err)
}
