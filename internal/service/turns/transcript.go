package turns

import (
	"fmt"
	"strings"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// FormatTranscript renders turns as a human-readable transcript with the
// trace summary and per-stage metrics of each turn.
func FormatTranscript(turns []models.ConversationTurn) string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)
	b.WriteString(rule + "\n")
	b.WriteString("CONVERSATION TRANSCRIPT\n")
	b.WriteString(rule + "\n")

	for i, t := range turns {
		fmt.Fprintf(&b, "\nTURN %d (ID: %s)\n", i+1, t.TurnID)
		b.WriteString(strings.Repeat("-", 40) + "\n")

		if t.TraceID != "" {
			fmt.Fprintf(&b, "TRACE: %s | %d spans | %s | %s\n",
				t.TraceID, len(t.OtelSpans), formatMs(t.TraceDurationMs), formatUSD(t.TraceCostUSD))
		}
		if t.BugReport {
			b.WriteString("BUG REPORT: flagged by user\n")
		}

		if t.UserTranscript != "" {
			fmt.Fprintf(&b, "USER: %s\n", t.UserTranscript)
			if m := t.STTMetrics; m != nil {
				fmt.Fprintf(&b, "   STT: %.2fs audio\n", m.AudioDuration)
			}
			if e := t.EnhancedSTTData; e != nil {
				fmt.Fprintf(&b, "   STT detail: %d words, %s model\n", e.WordCount, orUnknown(e.ModelName))
			}
			if m := t.EOUMetrics; m != nil {
				fmt.Fprintf(&b, "   EOU: %.2fs delay\n", m.EndOfUtteranceDelay)
			}
		} else {
			b.WriteString("USER: [No user input]\n")
		}

		if t.AgentResponse != "" {
			fmt.Fprintf(&b, "AGENT: %s\n", t.AgentResponse)
			if m := t.LLMMetrics; m != nil {
				fmt.Fprintf(&b, "   LLM: %d+%d tokens, TTFT: %.2fs\n", m.PromptTokens, m.CompletionTokens, m.TTFT)
			}
			if e := t.EnhancedLLMData; e != nil {
				fmt.Fprintf(&b, "   LLM detail: %d words, %s model\n", e.WordCount, orUnknown(e.ModelName))
			}
			if m := t.TTSMetrics; m != nil {
				fmt.Fprintf(&b, "   TTS: %d chars, %.2fs\n", m.CharactersCount, m.AudioDuration)
			}
			if e := t.EnhancedTTSData; e != nil {
				fmt.Fprintf(&b, "   TTS detail: %d chars, %s voice\n", e.TextLength, orUnknown(e.VoiceID))
			}
		}
		for _, tc := range t.ToolCalls {
			fmt.Fprintf(&b, "   TOOL: %s (%s)\n", tc.Name, tc.Status)
		}
	}
	return b.String()
}

func formatMs(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *v)
}

func formatUSD(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("$%.6f", *v)
}
