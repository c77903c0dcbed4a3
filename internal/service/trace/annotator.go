package trace

import (
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
)

const unknownModel = "unknown"

// ModelSource reports the models detected for a session at start.
type ModelSource interface {
	DetectedModel(kind models.MetricKind) string
	DetectedVoice() string
}

// Annotator computes trace duration and cost for finalized turns.
type Annotator struct {
	pricer  Pricer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewAnnotator creates an annotator. A nil pricer selects the fixed-rate formula.
func NewAnnotator(pricer Pricer, logger zerolog.Logger) *Annotator {
	return &Annotator{
		pricer:  pricer,
		logger:  logging.WithComponent(logger, "trace-annotator"),
		metrics: metrics.DefaultMetrics,
	}
}

// Annotate sets TraceDurationMs and TraceCostUSD on a turn with spans.
// Turns without spans are left untouched. It never panics.
func (a *Annotator) Annotate(turn *models.ConversationTurn, src ModelSource) {
	if len(turn.OtelSpans) == 0 {
		return
	}

	d := Duration(turn.OtelSpans)
	turn.TraceDurationMs = &d

	cost := a.cost(turn, src)
	turn.TraceCostUSD = &cost

	a.metrics.RecordTurnAnnotated(cost, d)
	a.logger.Debug().
		Str("turnId", turn.TurnID).
		Int64("traceDurationMs", d).
		Float64("traceCostUsd", cost).
		Int("spans", len(turn.OtelSpans)).
		Msg("Turn annotated")
}

// Duration returns the wall-clock coverage of spans in milliseconds.
func Duration(spans []models.Span) int64 {
	if len(spans) == 0 {
		return 0
	}
	minStart := spans[0].StartTime
	maxEnd := spans[0].EndTime()
	for _, s := range spans[1:] {
		minStart = min(minStart, s.StartTime)
		maxEnd = max(maxEnd, s.EndTime())
	}
	return int64((maxEnd - minStart) * 1000)
}

func (a *Annotator) cost(turn *models.ConversationTurn, src ModelSource) float64 {
	if a.pricer == nil {
		a.metrics.RecordPricingFallback("unavailable")
		return FallbackCost(turn.OtelSpans)
	}
	var total float64
	for _, span := range turn.OtelSpans {
		usd, err := a.priceSpan(turn, span, src)
		if err != nil {
			a.logger.Error().Err(err).Str("turnId", turn.TurnID).Msg("Dynamic pricing failed, using fixed rates for span")
			a.metrics.RecordPricingFallback("error")
			usd = fallbackSpanCost(span)
		}
		total += usd
	}
	return RoundUSD(total)
}

func (a *Annotator) priceSpan(turn *models.ConversationTurn, span models.Span, src ModelSource) (usd float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pricer panic on %s span %s: %v", span.Operation, span.SpanID, r)
		}
	}()

	priced := span
	priced.Metadata = maps.Clone(span.Metadata)
	if priced.Metadata == nil {
		priced.Metadata = map[string]any{}
	}
	if model, ok := resolveModel(span, turn, src); ok {
		priced.Metadata["model_name"] = model
	}

	usd, explanation, err := a.pricer.Cost(priced)
	if err != nil {
		return 0, fmt.Errorf("price %s span %s: %w", span.Operation, span.SpanID, err)
	}
	a.logger.Debug().
		Str("turnId", turn.TurnID).
		Str("operation", span.Operation).
		Float64("costUsd", usd).
		Str("explanation", explanation).
		Msg("Span priced")
	return usd, nil
}

// resolveModel picks the pricing key for span: span metadata first, then the
// turn's enhanced data, then the session registry. "unknown" never wins.
func resolveModel(span models.Span, turn *models.ConversationTurn, src ModelSource) (string, bool) {
	var candidates []string
	switch span.Operation {
	case string(models.KindLLM), string(models.KindSTT):
		kind := models.MetricKind(span.Operation)
		candidates = append(candidates, Text(span.Metadata["model_name"]))
		if e := turn.Enhanced(kind); e != nil {
			candidates = append(candidates, e.ModelName)
		}
		if src != nil {
			candidates = append(candidates, src.DetectedModel(kind))
		}
	case string(models.KindTTS):
		candidates = append(candidates, Text(span.Metadata["voice_id"]))
		if turn.EnhancedTTSData != nil {
			candidates = append(candidates, turn.EnhancedTTSData.VoiceID)
		}
		if src != nil {
			candidates = append(candidates, src.DetectedVoice())
		}
	default:
		return "", false
	}

	for _, c := range candidates {
		if c != "" && c != unknownModel {
			return c, true
		}
	}
	return unknownModel, true
}
