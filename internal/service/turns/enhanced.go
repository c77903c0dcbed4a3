package turns

import (
	"strings"
	"time"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// charsPerSecond is the speaking rate used to estimate synthesized speech length.
const charsPerSecond = 15.0

func (c *Collector) enhanced(turn *models.ConversationTurn, kind models.MetricKind) *models.EnhancedData {
	switch kind {
	case models.KindSTT:
		if turn.EnhancedSTTData == nil {
			turn.EnhancedSTTData = &models.EnhancedData{}
		}
		return turn.EnhancedSTTData
	case models.KindLLM:
		if turn.EnhancedLLMData == nil {
			turn.EnhancedLLMData = &models.EnhancedData{}
		}
		return turn.EnhancedLLMData
	case models.KindTTS:
		if turn.EnhancedTTSData == nil {
			turn.EnhancedTTSData = &models.EnhancedData{}
		}
		return turn.EnhancedTTSData
	}
	return nil
}

func fillFromText(e *models.EnhancedData, text string, at time.Time, speech bool) {
	e.Text = text
	e.TextLength = len(text)
	e.WordCount = len(strings.Fields(text))
	e.HasCode = strings.Contains(text, "```") || strings.Contains(text, "def ")
	e.HasURLs = strings.Contains(text, "http")
	e.HasPunctuation = strings.ContainsAny(text, ".,!?;:")
	if speech {
		e.EstimatedSpeechDuration = float64(len(text)) / charsPerSecond
	}
	e.Timestamp = trace.UnixSeconds(at)
}

func (c *Collector) enrichFromMetrics(turn *models.ConversationTurn, m models.Metrics) {
	kind := m.Kind()
	e := c.enhanced(turn, kind)
	if e == nil {
		return
	}

	if c.registry != nil {
		e.ModelName = orUnknown(c.registry.DetectedModel(kind))
		e.Provider = orUnknown(c.registry.DetectedProvider(kind))
		if kind == models.KindTTS {
			e.VoiceID = orUnknown(c.registry.DetectedVoice())
		}
	}
	if rid, ok := m.SpanMetadata()["request_id"].(string); ok && rid != "" {
		e.RequestID = rid
	}
	if ts := m.StartTime(); ts != 0 {
		e.Timestamp = ts
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
