package models

import (
	"errors"
	"fmt"
)

// EventType names an inbound voice-pipeline event.
type EventType string

const (
	EventSessionStart           EventType = "session_start"
	EventConversationItem       EventType = "conversation_item"
	EventUserTranscript         EventType = "user_transcript"
	EventMetrics                EventType = "metrics"
	EventFunctionCallsCollected EventType = "function_calls_collected"
	EventFunctionToolsExecuted  EventType = "function_tools_executed"
	EventUserState              EventType = "user_state"
	EventAgentState             EventType = "agent_state"
	EventClose                  EventType = "close"
	EventExport                 EventType = "export"
)

// Conversation item roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnknownMetricKind is returned when a metrics payload names no known stage.
var ErrUnknownMetricKind = errors.New("unknown metric kind")

// Envelope is the wire form of every inbound event. Which fields are set depends on Type.
type Envelope struct {
	SessionID     string          `json:"session_id"`
	Type          EventType       `json:"type"`
	Timestamp     float64         `json:"timestamp,omitempty"`
	Role          string          `json:"role,omitempty"`
	Text          string          `json:"text,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	Metrics       *MetricsPayload `json:"metrics,omitempty"`
	FunctionCalls []FunctionCall  `json:"function_calls,omitempty"`
	Tools         []ToolExecution `json:"tools,omitempty"`
	OldState      string          `json:"old_state,omitempty"`
	NewState      string          `json:"new_state,omitempty"`
	Error         string          `json:"error,omitempty"`
	Start         *SessionStart   `json:"start,omitempty"`
	RecordingURL  string          `json:"recording_url,omitempty"`
}

// MetricsPayload is the flat wire form of a metrics-collected event.
type MetricsPayload struct {
	Kind MetricKind `json:"kind"`

	AudioDuration       float64 `json:"audio_duration,omitempty"`
	Duration            float64 `json:"duration,omitempty"`
	Timestamp           float64 `json:"timestamp,omitempty"`
	RequestID           string  `json:"request_id,omitempty"`
	PromptTokens        int     `json:"prompt_tokens,omitempty"`
	CompletionTokens    int     `json:"completion_tokens,omitempty"`
	TTFT                float64 `json:"ttft,omitempty"`
	TokensPerSecond     float64 `json:"tokens_per_second,omitempty"`
	CharactersCount     int     `json:"characters_count,omitempty"`
	TTFB                float64 `json:"ttfb,omitempty"`
	EndOfUtteranceDelay float64 `json:"end_of_utterance_delay,omitempty"`
	TranscriptionDelay  float64 `json:"transcription_delay,omitempty"`
}

// ToMetrics converts the payload to the typed snapshot for its kind.
func (p *MetricsPayload) ToMetrics() (Metrics, error) {
	switch p.Kind {
	case KindSTT:
		return &STTMetrics{
			AudioDuration: p.AudioDuration,
			Duration:      p.Duration,
			Timestamp:     p.Timestamp,
			RequestID:     p.RequestID,
		}, nil
	case KindLLM:
		return &LLMMetrics{
			PromptTokens:     p.PromptTokens,
			CompletionTokens: p.CompletionTokens,
			TTFT:             p.TTFT,
			TokensPerSecond:  p.TokensPerSecond,
			Duration:         p.Duration,
			Timestamp:        p.Timestamp,
			RequestID:        p.RequestID,
		}, nil
	case KindTTS:
		return &TTSMetrics{
			CharactersCount: p.CharactersCount,
			AudioDuration:   p.AudioDuration,
			TTFB:            p.TTFB,
			Duration:        p.Duration,
			Timestamp:       p.Timestamp,
			RequestID:       p.RequestID,
		}, nil
	case KindEOU:
		return &EOUMetrics{
			EndOfUtteranceDelay: p.EndOfUtteranceDelay,
			TranscriptionDelay:  p.TranscriptionDelay,
			Timestamp:           p.Timestamp,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetricKind, p.Kind)
}

// FunctionCall is a tool invocation requested by the language model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id,omitempty"`
}

// ToolExecution is a function call together with its output.
type ToolExecution struct {
	FunctionCall
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	IsError   bool    `json:"is_error,omitempty"`
}

// ModelDescriptor describes one pipeline backend as announced by the host.
type ModelDescriptor struct {
	Name         string `json:"model"`
	ProviderName string `json:"provider,omitempty"`
	Voice        string `json:"voice,omitempty"`
}

func (d ModelDescriptor) ModelName() string { return d.Name }
func (d ModelDescriptor) Provider() string  { return d.ProviderName }
func (d ModelDescriptor) VoiceID() string   { return d.Voice }

// PipelineModels lists the backends of a voice session.
type PipelineModels struct {
	STT *ModelDescriptor `json:"stt,omitempty"`
	LLM *ModelDescriptor `json:"llm,omitempty"`
	TTS *ModelDescriptor `json:"tts,omitempty"`
}

// SessionStart carries the call identity and pipeline description.
type SessionStart struct {
	CallID           string         `json:"call_id,omitempty"`
	AgentID          string         `json:"agent_id"`
	CustomerNumber   string         `json:"customer_number,omitempty"`
	Models           PipelineModels `json:"models"`
	DynamicVariables map[string]any `json:"dynamic_variables,omitempty"`
	Evaluation       string         `json:"evaluation,omitempty"`
}

// SpeechOutput asks the host pipeline to speak text immediately.
type SpeechOutput struct {
	Text         string `json:"text"`
	AddToHistory bool   `json:"add_to_history"`
}

// EventResult is returned to the host for every processed event.
type EventResult struct {
	SessionID  string         `json:"session_id"`
	Type       EventType      `json:"type"`
	Suppressed bool           `json:"suppressed"`
	Say        []SpeechOutput `json:"say,omitempty"`
	Export     map[string]any `json:"export,omitempty"`
}
