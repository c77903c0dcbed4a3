package session

import (
	"strings"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// ModelInfo is implemented by pipeline backends that can describe themselves.
type ModelInfo interface {
	ModelName() string
	Provider() string
}

// VoiceInfo is implemented by synthesis backends with a configured voice.
type VoiceInfo interface {
	VoiceID() string
}

// providerHints maps model-name fragments to providers, checked in order.
var providerHints = []struct {
	provider  string
	fragments []string
}{
	{"openai", []string{"gpt", "openai", "whisper", "tts-1"}},
	{"anthropic", []string{"claude", "anthropic"}},
	{"google", []string{"gemini", "palm", "bard"}},
	{"sarvam", []string{"saarika", "sarvam"}},
	{"elevenlabs", []string{"eleven", "elevenlabs"}},
	{"cartesia", []string{"cartesia", "sonic"}},
	{"deepgram", []string{"deepgram", "nova"}},
}

// InferProvider guesses the provider of a model from its name.
func InferProvider(model string) string {
	m := strings.ToLower(model)
	if m == "" {
		return "unknown"
	}
	for _, h := range providerHints {
		for _, f := range h.fragments {
			if strings.Contains(m, f) {
				return h.provider
			}
		}
	}
	return "unknown"
}

type detected struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Voice    string `json:"voice,omitempty"`
}

// Registry records the models detected for a session, resolved once when
// the session starts.
type Registry struct {
	byKind map[models.MetricKind]detected
	voice  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[models.MetricKind]detected)}
}

// Set records the backend serving kind. The provider comes from the backend
// itself, else from its model name.
func (r *Registry) Set(kind models.MetricKind, info ModelInfo) {
	if info == nil {
		return
	}
	d := detected{Model: info.ModelName(), Provider: info.Provider()}
	if d.Provider == "" || d.Provider == "unknown" {
		d.Provider = InferProvider(d.Model)
	}
	if v, ok := info.(VoiceInfo); ok {
		d.Voice = v.VoiceID()
		if kind == models.KindTTS {
			r.voice = d.Voice
		}
	}
	r.byKind[kind] = d
}

// Load records every backend of a pipeline description.
func (r *Registry) Load(p models.PipelineModels) {
	if p.STT != nil {
		r.Set(models.KindSTT, *p.STT)
	}
	if p.LLM != nil {
		r.Set(models.KindLLM, *p.LLM)
	}
	if p.TTS != nil {
		r.Set(models.KindTTS, *p.TTS)
	}
}

func (r *Registry) DetectedModel(kind models.MetricKind) string {
	return r.byKind[kind].Model
}

func (r *Registry) DetectedProvider(kind models.MetricKind) string {
	return r.byKind[kind].Provider
}

func (r *Registry) DetectedVoice() string {
	return r.voice
}

// Snapshot returns the registry contents for call-log metadata.
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any, len(r.byKind))
	for kind, d := range r.byKind {
		out[string(kind)] = d
	}
	return out
}
