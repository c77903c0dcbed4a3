package trace

import (
	"encoding/json"
	"math"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// Fixed rates used when no pricer is configured or pricing a span fails.
const (
	FallbackLLMInputPerToken  = 1.0 / 1_000_000
	FallbackLLMOutputPerToken = 3.0 / 1_000_000
	FallbackTTSPerCharacter   = 20.0 / 1_000_000
	FallbackSTTPerSecond      = 0.50 / 3600
)

// Pricer prices one span. The span passed in already carries the resolved
// model identifier in metadata["model_name"].
type Pricer interface {
	Cost(span models.Span) (usd float64, explanation string, err error)
}

// PricerFunc adapts a function to Pricer.
type PricerFunc func(span models.Span) (float64, string, error)

// Cost implements Pricer.
func (f PricerFunc) Cost(span models.Span) (float64, string, error) {
	return f(span)
}

// FallbackCost prices spans with the fixed rates.
func FallbackCost(spans []models.Span) float64 {
	var total float64
	for _, s := range spans {
		total += fallbackSpanCost(s)
	}
	return RoundUSD(total)
}

func fallbackSpanCost(s models.Span) float64 {
	switch s.Operation {
	case string(models.KindLLM):
		return Number(s.Metadata["prompt_tokens"])*FallbackLLMInputPerToken +
			Number(s.Metadata["completion_tokens"])*FallbackLLMOutputPerToken
	case string(models.KindTTS):
		return Number(s.Metadata["characters_count"]) * FallbackTTSPerCharacter
	case string(models.KindSTT):
		return Number(s.Metadata["audio_duration"]) * FallbackSTTPerSecond
	}
	return 0
}

// RoundUSD rounds to 6 decimal places.
func RoundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Number reads a numeric metadata value. Unknown types read as zero.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// Text reads a string metadata value.
func Text(v any) string {
	s, _ := v.(string)
	return s
}
