// Package models defines the data structures shared by the telemetry pipeline:
// conversation turns, metric snapshots, spans, inbound events and call-log payloads.
package models

// Span status values.
const (
	SpanStatusSuccess = "success"
	SpanStatusError   = "error"
)

// OperationToolCall is the span operation recorded for executed function tools.
const OperationToolCall = "tool_call"

// Span is a timed record of one pipeline operation. Spans are built once when
// their source is attached to a turn and are not modified afterwards.
type Span struct {
	SpanID     string         `json:"span_id"`
	Operation  string         `json:"operation"`
	StartTime  float64        `json:"start_time"`
	DurationMs int64          `json:"duration_ms"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata"`
}

// EndTime returns the span end as unix seconds.
func (s Span) EndTime() float64 {
	return s.StartTime + float64(s.DurationMs)/1000
}

// ToolCall records one function invocation made by the agent during a turn.
type ToolCall struct {
	Name                string  `json:"name"`
	Arguments           any     `json:"arguments,omitempty"`
	RawArguments        string  `json:"raw_arguments,omitempty"`
	CallID              string  `json:"call_id,omitempty"`
	Timestamp           float64 `json:"timestamp"`
	ExecutionStart      float64 `json:"execution_start,omitempty"`
	ExecutionEnd        float64 `json:"execution_end,omitempty"`
	ExecutionDurationMs int64   `json:"execution_duration_ms,omitempty"`
	Status              string  `json:"status"`
	Result              string  `json:"result,omitempty"`
	Error               string  `json:"error,omitempty"`
	ResultLength        int     `json:"result_length,omitempty"`
}

// StateEvent is a user or agent state transition observed during a turn.
type StateEvent struct {
	Type      string  `json:"type"`
	OldState  string  `json:"old_state"`
	NewState  string  `json:"new_state"`
	Timestamp float64 `json:"timestamp"`
}

// EnhancedData is per-category information inferred from text and metric events.
type EnhancedData struct {
	ModelName               string  `json:"model_name,omitempty"`
	Provider                string  `json:"provider,omitempty"`
	VoiceID                 string  `json:"voice_id,omitempty"`
	Text                    string  `json:"text,omitempty"`
	TextLength              int     `json:"text_length,omitempty"`
	WordCount               int     `json:"word_count,omitempty"`
	HasCode                 bool    `json:"has_code,omitempty"`
	HasURLs                 bool    `json:"has_urls,omitempty"`
	HasPunctuation          bool    `json:"has_punctuation,omitempty"`
	EstimatedSpeechDuration float64 `json:"estimated_speech_duration,omitempty"`
	RequestID               string  `json:"request_id,omitempty"`
	Timestamp               float64 `json:"timestamp,omitempty"`
}

// ConversationTurn is one user-utterance/agent-response exchange.
type ConversationTurn struct {
	TurnID         string `json:"turn_id"`
	UserTranscript string `json:"user_transcript"`
	AgentResponse  string `json:"agent_response"`

	STTMetrics *STTMetrics `json:"stt_metrics"`
	LLMMetrics *LLMMetrics `json:"llm_metrics"`
	TTSMetrics *TTSMetrics `json:"tts_metrics"`
	EOUMetrics *EOUMetrics `json:"eou_metrics"`

	Timestamp         float64 `json:"timestamp"`
	UserTurnComplete  bool    `json:"user_turn_complete"`
	AgentTurnComplete bool    `json:"agent_turn_complete"`
	BugReport         bool    `json:"bug_report"`

	TraceID         string     `json:"trace_id,omitempty"`
	OtelSpans       []Span     `json:"otel_spans"`
	ToolCalls       []ToolCall `json:"tool_calls"`
	TraceDurationMs *int64     `json:"trace_duration_ms"`
	TraceCostUSD    *float64   `json:"trace_cost_usd"`

	EnhancedSTTData *EnhancedData `json:"enhanced_stt_data,omitempty"`
	EnhancedLLMData *EnhancedData `json:"enhanced_llm_data,omitempty"`
	EnhancedTTSData *EnhancedData `json:"enhanced_tts_data,omitempty"`
	StateEvents     []StateEvent  `json:"state_events,omitempty"`
}

// HasMetrics reports whether the turn already carries a snapshot of kind k.
func (t *ConversationTurn) HasMetrics(k MetricKind) bool {
	switch k {
	case KindSTT:
		return t.STTMetrics != nil
	case KindLLM:
		return t.LLMMetrics != nil
	case KindTTS:
		return t.TTSMetrics != nil
	case KindEOU:
		return t.EOUMetrics != nil
	}
	return false
}

// HasTextFor reports whether the text field that metrics of kind k describe is populated.
func (t *ConversationTurn) HasTextFor(k MetricKind) bool {
	if k.UserSide() {
		return t.UserTranscript != ""
	}
	return t.AgentResponse != ""
}

// SetMetrics stores m in the field matching its kind.
func (t *ConversationTurn) SetMetrics(m Metrics) {
	switch v := m.(type) {
	case *STTMetrics:
		t.STTMetrics = v
	case *LLMMetrics:
		t.LLMMetrics = v
	case *TTSMetrics:
		t.TTSMetrics = v
	case *EOUMetrics:
		t.EOUMetrics = v
	}
}

// Enhanced returns the enhanced data slot for kind k, or nil for end-of-utterance.
func (t *ConversationTurn) Enhanced(k MetricKind) *EnhancedData {
	switch k {
	case KindSTT:
		return t.EnhancedSTTData
	case KindLLM:
		return t.EnhancedLLMData
	case KindTTS:
		return t.EnhancedTTSData
	}
	return nil
}
