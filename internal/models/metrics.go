package models

// MetricKind identifies the pipeline stage that reported a metrics snapshot.
type MetricKind string

const (
	KindSTT MetricKind = "stt"
	KindLLM MetricKind = "llm"
	KindTTS MetricKind = "tts"
	KindEOU MetricKind = "eou"
)

// MetricKinds lists every kind in buffer order.
var MetricKinds = []MetricKind{KindSTT, KindLLM, KindTTS, KindEOU}

// Valid reports whether k is one of the four known kinds.
func (k MetricKind) Valid() bool {
	switch k {
	case KindSTT, KindLLM, KindTTS, KindEOU:
		return true
	}
	return false
}

// UserSide reports whether metrics of this kind belong to the user half of a
// turn (they need user_transcript) rather than the agent half (agent_response).
func (k MetricKind) UserSide() bool {
	return k == KindSTT || k == KindEOU
}

// Metrics is a snapshot reported by one stage of the voice pipeline.
type Metrics interface {
	Kind() MetricKind
	// StartTime is the unix time in seconds the stage reported, zero if unknown.
	StartTime() float64
	// DurationSeconds is the processing time of the stage, zero if not reported.
	DurationSeconds() float64
	// SpanMetadata returns the fields copied onto the trace span.
	SpanMetadata() map[string]any
}

// STTMetrics is reported by the speech-to-text stage.
type STTMetrics struct {
	AudioDuration float64 `json:"audio_duration"`
	Duration      float64 `json:"duration"`
	Timestamp     float64 `json:"timestamp"`
	RequestID     string  `json:"request_id,omitempty"`
}

func (m *STTMetrics) Kind() MetricKind         { return KindSTT }
func (m *STTMetrics) StartTime() float64       { return m.Timestamp }
func (m *STTMetrics) DurationSeconds() float64 { return m.Duration }

func (m *STTMetrics) SpanMetadata() map[string]any {
	return map[string]any{
		"audio_duration": m.AudioDuration,
		"request_id":     m.RequestID,
	}
}

// LLMMetrics is reported by the language-model stage.
type LLMMetrics struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TTFT             float64 `json:"ttft"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
	Duration         float64 `json:"duration,omitempty"`
	Timestamp        float64 `json:"timestamp"`
	RequestID        string  `json:"request_id,omitempty"`
}

func (m *LLMMetrics) Kind() MetricKind         { return KindLLM }
func (m *LLMMetrics) StartTime() float64       { return m.Timestamp }
func (m *LLMMetrics) DurationSeconds() float64 { return m.Duration }

func (m *LLMMetrics) SpanMetadata() map[string]any {
	return map[string]any{
		"prompt_tokens":     m.PromptTokens,
		"completion_tokens": m.CompletionTokens,
		"ttft":              m.TTFT,
		"tokens_per_second": m.TokensPerSecond,
		"request_id":        m.RequestID,
	}
}

// TTSMetrics is reported by the speech-synthesis stage.
type TTSMetrics struct {
	CharactersCount int     `json:"characters_count"`
	AudioDuration   float64 `json:"audio_duration"`
	TTFB            float64 `json:"ttfb"`
	Duration        float64 `json:"duration,omitempty"`
	Timestamp       float64 `json:"timestamp"`
	RequestID       string  `json:"request_id,omitempty"`
}

func (m *TTSMetrics) Kind() MetricKind         { return KindTTS }
func (m *TTSMetrics) StartTime() float64       { return m.Timestamp }
func (m *TTSMetrics) DurationSeconds() float64 { return m.Duration }

func (m *TTSMetrics) SpanMetadata() map[string]any {
	return map[string]any{
		"characters_count": m.CharactersCount,
		"audio_duration":   m.AudioDuration,
		"ttfb":             m.TTFB,
		"request_id":       m.RequestID,
	}
}

// EOUMetrics is reported by end-of-utterance detection.
type EOUMetrics struct {
	EndOfUtteranceDelay float64 `json:"end_of_utterance_delay"`
	TranscriptionDelay  float64 `json:"transcription_delay"`
	Timestamp           float64 `json:"timestamp"`
}

func (m *EOUMetrics) Kind() MetricKind         { return KindEOU }
func (m *EOUMetrics) StartTime() float64       { return m.Timestamp }
func (m *EOUMetrics) DurationSeconds() float64 { return 0 }

func (m *EOUMetrics) SpanMetadata() map[string]any {
	return map[string]any{
		"end_of_utterance_delay": m.EndOfUtteranceDelay,
		"transcription_delay":    m.TranscriptionDelay,
	}
}
