package trace

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

const testRates = `
llm:
  GPT-4o-mini:
    input_per_million: 0.15
    output_per_million: 0.60
tts:
  rachel:
    per_million_characters: 30
stt:
  saarika:v2:
    per_hour: 0.36
`

func TestRateCard_Cost(t *testing.T) {
	rc, err := ParseRateCard([]byte(testRates))
	require.NoError(t, err)

	usd, _, err := rc.Cost(models.Span{Operation: "llm", Metadata: map[string]any{"model_name": "gpt-4o-mini", "prompt_tokens": 1_000_000, "completion_tokens": 1_000_000}})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, usd, 1e-9)

	usd, _, err = rc.Cost(models.Span{Operation: "tts", Metadata: map[string]any{"model_name": "Rachel", "characters_count": 1000}})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, usd, 1e-9)

	usd, _, err = rc.Cost(models.Span{Operation: "stt", Metadata: map[string]any{"model_name": "saarika:v2", "audio_duration": 3600.0}})
	require.NoError(t, err)
	assert.InDelta(t, 0.36, usd, 1e-9)

	usd, _, err = rc.Cost(models.Span{Operation: "eou"})
	require.NoError(t, err)
	assert.Zero(t, usd)
}

func TestRateCard_UnknownModel(t *testing.T) {
	rc, err := ParseRateCard([]byte(testRates))
	require.NoError(t, err)

	_, _, err = rc.Cost(models.Span{Operation: "llm", Metadata: map[string]any{"model_name": "unknown"}})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRateCard_UnknownModelFallsBackInAnnotator(t *testing.T) {
	rc, err := ParseRateCard([]byte(testRates))
	require.NoError(t, err)
	turn := llmTurn(1000, 500)

	NewAnnotator(rc, zerolog.Nop()).Annotate(turn, nil)

	require.NotNil(t, turn.TraceCostUSD)
	assert.Equal(t, 0.0025, *turn.TraceCostUSD)
}

func TestParseRateCard_Invalid(t *testing.T) {
	_, err := ParseRateCard([]byte("llm: [not, a, map]"))
	assert.Error(t, err)
}
