package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unexpected log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSession(WithComponent(zerolog.New(&buf), "voice"), "sess-1")

	logger.Info().Msg("hello")

	entry := lastEntry(t, &buf)
	if entry["sessionId"] != "sess-1" {
		t.Errorf("expected sessionId sess-1, got %v", entry["sessionId"])
	}
	if entry["component"] != "voice" {
		t.Errorf("expected component voice, got %v", entry["component"])
	}
}

func TestWithCall(t *testing.T) {
	var buf bytes.Buffer
	logger := WithCall(zerolog.New(&buf), "sess-1", "call-42", "agent-7")

	logger.Info().Msg("exported")

	entry := lastEntry(t, &buf)
	for key, want := range map[string]string{"sessionId": "sess-1", "callId": "call-42", "agentId": "agent-7"} {
		if entry[key] != want {
			t.Errorf("expected %s %s, got %v", key, want, entry[key])
		}
	}
}

func TestWithComponent_KeepsParentLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(zerolog.New(&buf).Level(zerolog.WarnLevel), "exporter")

	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}

	logger.Warn().Msg("kept")
	if entry := lastEntry(t, &buf); entry["component"] != "exporter" {
		t.Errorf("expected component exporter, got %v", entry["component"])
	}
}
