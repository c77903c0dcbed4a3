// Package evaluation scores a finished conversation with pluggable scorers
// under a wall-clock limit.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 30 * time.Second

// Input is the conversation handed to a scorer.
type Input struct {
	Transcript []models.TranscriptEntry
	// ResponseText is the agent answer under evaluation; when empty the last
	// assistant entry of Transcript is used.
	ResponseText string
}

// Score is what a scorer reports.
type Score struct {
	Overall  float64
	Criteria map[string]float64
}

// Scorer grades a conversation. Implementations should honour ctx, but a
// scorer that ignores it is abandoned at the timeout, not stopped.
type Scorer interface {
	Score(ctx context.Context, in Input) (Score, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, in Input) (Score, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, in Input) (Score, error) {
	return f(ctx, in)
}

// Result is stored under metadata.evaluation of the call log.
type Result struct {
	OverallScore   float64            `json:"overall_score"`
	CriteriaScores map[string]float64 `json:"criteria_scores,omitempty"`
	EvaluationType string             `json:"evaluation_type"`
	Error          string             `json:"error,omitempty"`
	DurationMs     int64              `json:"duration_ms"`
}

// Runner dispatches evaluations to registered scorers.
type Runner struct {
	mu      sync.RWMutex
	scorers map[string]Scorer
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a runner with the built-in scorers registered.
func NewRunner(timeout time.Duration, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runner{
		scorers: make(map[string]Scorer),
		timeout: timeout,
		logger:  logging.WithComponent(logger, "evaluation"),
		metrics: metrics.DefaultMetrics,
	}
	r.Register(TypeCoverage, ScorerFunc(Coverage))
	return r
}

// Register adds or replaces the scorer for evalType.
func (r *Runner) Register(evalType string, s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[evalType] = s
}

// Types lists the registered evaluation types.
func (r *Runner) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.scorers))
	for k := range r.scorers {
		out = append(out, k)
	}
	return out
}

type outcome struct {
	score Score
	err   error
}

// Run evaluates in with the scorer registered for evalType. It never fails:
// errors, panics and timeouts become a zero-score Result carrying the error.
func (r *Runner) Run(ctx context.Context, evalType string, in Input) Result {
	start := time.Now()
	res := r.run(ctx, evalType, in)
	res.EvaluationType = evalType
	res.DurationMs = time.Since(start).Milliseconds()

	status := "success"
	if res.Error != "" {
		status = "error"
		if res.Error == "Evaluation timeout" {
			status = "timeout"
		}
		r.logger.Warn().Str("type", evalType).Str("error", res.Error).Msg("Evaluation did not complete")
	} else {
		r.logger.Info().Str("type", evalType).Float64("score", res.OverallScore).Msg("Evaluation completed")
	}
	r.metrics.RecordEvaluation(evalType, status)
	return res
}

func (r *Runner) run(ctx context.Context, evalType string, in Input) Result {
	r.mu.RLock()
	scorer, ok := r.scorers[evalType]
	r.mu.RUnlock()
	if !ok {
		return Result{Error: fmt.Sprintf("Unsupported evaluation type: %s", evalType)}
	}
	if len(in.Transcript) == 0 {
		return Result{Error: "No transcript data"}
	}
	if strings.TrimSpace(in.ResponseText) == "" {
		in.ResponseText = lastAssistant(in.Transcript)
	}
	if in.ResponseText == "" {
		return Result{Error: "No response text found"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("scorer panic: %v", p)}
			}
		}()
		s, err := scorer.Score(ctx, in)
		done <- outcome{score: s, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{Error: o.err.Error()}
		}
		criteria := o.score.Criteria
		if criteria == nil {
			criteria = map[string]float64{}
		}
		return Result{OverallScore: o.score.Overall, CriteriaScores: criteria}
	case <-ctx.Done():
		return Result{Error: "Evaluation timeout"}
	}
}

func lastAssistant(entries []models.TranscriptEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == models.RoleAssistant && strings.TrimSpace(entries[i].Content) != "" {
			return entries[i].Content
		}
	}
	return ""
}
