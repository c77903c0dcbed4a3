package trace

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// ErrUnknownModel is returned when the rate card has no entry for a span's model.
var ErrUnknownModel = errors.New("no rate for model")

// LLMRate prices language-model tokens.
type LLMRate struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// TTSRate prices synthesized characters.
type TTSRate struct {
	PerMillionCharacters float64 `yaml:"per_million_characters"`
}

// STTRate prices recognized audio.
type STTRate struct {
	PerHour float64 `yaml:"per_hour"`
}

// RateCard is a static price table keyed by model (or voice for speech synthesis).
// Keys are matched case-insensitively.
type RateCard struct {
	LLM map[string]LLMRate `yaml:"llm"`
	TTS map[string]TTSRate `yaml:"tts"`
	STT map[string]STTRate `yaml:"stt"`
}

// LoadRateCard reads a YAML rate card from path.
func LoadRateCard(path string) (*RateCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate card: %w", err)
	}
	return ParseRateCard(data)
}

// ParseRateCard decodes a YAML rate card.
func ParseRateCard(data []byte) (*RateCard, error) {
	var rc RateCard
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parse rate card: %w", err)
	}
	rc.LLM = lowerKeys(rc.LLM)
	rc.TTS = lowerKeys(rc.TTS)
	rc.STT = lowerKeys(rc.STT)
	return &rc, nil
}

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Cost implements Pricer. Operations without a rate table (eou, tool calls) cost nothing.
func (rc *RateCard) Cost(span models.Span) (float64, string, error) {
	model := strings.ToLower(Text(span.Metadata["model_name"]))

	switch span.Operation {
	case string(models.KindLLM):
		rate, ok := rc.LLM[model]
		if !ok {
			return 0, "", fmt.Errorf("%w: llm %q", ErrUnknownModel, model)
		}
		in := Number(span.Metadata["prompt_tokens"])
		out := Number(span.Metadata["completion_tokens"])
		usd := in*rate.InputPerMillion/1_000_000 + out*rate.OutputPerMillion/1_000_000
		return usd, fmt.Sprintf("%s: %.0f in + %.0f out tokens", model, in, out), nil
	case string(models.KindTTS):
		rate, ok := rc.TTS[model]
		if !ok {
			return 0, "", fmt.Errorf("%w: tts %q", ErrUnknownModel, model)
		}
		chars := Number(span.Metadata["characters_count"])
		return chars * rate.PerMillionCharacters / 1_000_000, fmt.Sprintf("%s: %.0f chars", model, chars), nil
	case string(models.KindSTT):
		rate, ok := rc.STT[model]
		if !ok {
			return 0, "", fmt.Errorf("%w: stt %q", ErrUnknownModel, model)
		}
		secs := Number(span.Metadata["audio_duration"])
		return secs * rate.PerHour / 3600, fmt.Sprintf("%s: %.2fs audio", model, secs), nil
	}
	return 0, "not billed", nil
}
