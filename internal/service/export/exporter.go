// Package export sends finished call logs to the analytics endpoint. Large
// payloads are gzip-compressed and oversized ones are split into a core
// record sent synchronously and a detailed record sent in the background.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
)

// Default endpoint and size limits.
const (
	DefaultAPIURL               = "https://mp1grlhon8.execute-api.ap-south-1.amazonaws.com/dev/send-call-log"
	DefaultCompressionThreshold = 10 * 1024
	DefaultTwoPhaseThreshold    = 4 * 1024 * 1024
	DefaultTimeout              = 30 * time.Second
)

// Upload methods reported in Result.
const (
	MethodSingle   = "single"
	MethodTwoPhase = "two_phase"
)

// ErrMissingAPIKey is reported when no API key is configured.
var ErrMissingAPIKey = errors.New("API key not provided and WHISPEY_API_KEY environment variable not set")

// Config holds the export endpoint settings.
type Config struct {
	APIURL               string
	APIKey               string
	CompressionThreshold int
	TwoPhaseThreshold    int
	Timeout              time.Duration
}

// Result is the outcome of an export. Failures are reported here rather
// than as Go errors.
type Result struct {
	Success        bool   `json:"success"`
	Status         int    `json:"status,omitempty"`
	Data           any    `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
	UploadMethod   string `json:"upload_method,omitempty"`
	Phase1Complete bool   `json:"phase_1_complete,omitempty"`
	Phase2Started  bool   `json:"phase_2_started,omitempty"`
}

// Map renders r for event responses, omitting unset fields.
func (r Result) Map() map[string]any {
	m := map[string]any{"success": r.Success}
	if r.Status != 0 {
		m["status"] = r.Status
	}
	if r.Data != nil {
		m["data"] = r.Data
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.UploadMethod != "" {
		m["upload_method"] = r.UploadMethod
	}
	if r.Phase1Complete {
		m["phase_1_complete"] = true
	}
	if r.Phase2Started {
		m["phase_2_started"] = true
	}
	return m
}

// Exporter posts call logs over HTTP.
type Exporter struct {
	cfg     Config
	client  *http.Client
	tracer  oteltrace.Tracer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exporter) { e.client = c }
}

// WithTracer sets the tracer used for export spans.
func WithTracer(t oteltrace.Tracer) Option {
	return func(e *Exporter) { e.tracer = t }
}

// New creates an exporter. Zero config values take their defaults.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Exporter {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = DefaultCompressionThreshold
	}
	if cfg.TwoPhaseThreshold <= 0 {
		cfg.TwoPhaseThreshold = DefaultTwoPhaseThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	e := &Exporter{
		cfg:     cfg,
		client:  newPooledClient(cfg.Timeout),
		tracer:  otel.Tracer("github.com/PYPE-AI-MAIN/whispey/export"),
		logger:  logging.WithComponent(logger, "exporter"),
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Plan describes how a serialized payload will be sent.
type Plan struct {
	OriginalSize int
	Size         int
	Encoded      string // gzip+base64 body; empty under the compression threshold
	TwoPhase     bool
	CompressErr  error
}

// PlanFor decides compression and splitting for a serialized payload. A
// payload is compressed when larger than the compression threshold and split
// when its (possibly compressed) size is larger than the two-phase threshold.
func (e *Exporter) PlanFor(body []byte) Plan {
	p := Plan{OriginalSize: len(body), Size: len(body)}
	if len(body) > e.cfg.CompressionThreshold {
		encoded, err := Compress(body)
		if err != nil {
			p.CompressErr = err
		} else {
			p.Encoded = encoded
			p.Size = len(encoded)
		}
	}
	p.TwoPhase = p.Size > e.cfg.TwoPhaseThreshold
	return p
}

// Export sends log, splitting it when oversized. apiKey overrides the
// configured key when non-empty. The call blocks until the single or core
// request completes; the detailed request of a two-phase export continues in
// the background and can be awaited with Wait.
func (e *Exporter) Export(ctx context.Context, log *models.CallLog, apiKey string) Result {
	if apiKey == "" {
		apiKey = e.cfg.APIKey
	}
	if apiKey == "" {
		e.logger.Error().Str("callId", log.CallID).Msg(ErrMissingAPIKey.Error())
		e.metrics.RecordExport(MethodSingle, false)
		return Result{Success: false, Error: ErrMissingAPIKey.Error()}
	}

	Normalize(log)
	logger := e.logger.With().Str("callId", log.CallID).Logger()

	body, err := json.Marshal(log)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to serialize call log")
		e.metrics.RecordExport(MethodSingle, false)
		return Result{Success: false, Error: fmt.Sprintf("JSON serialization failed: %v", err)}
	}

	plan := e.PlanFor(body)
	e.metrics.RecordPayloadSize("original", plan.OriginalSize)
	if plan.CompressErr != nil {
		logger.Warn().Err(plan.CompressErr).Msg("Compression failed, sending uncompressed")
	} else if plan.Encoded != "" {
		e.metrics.RecordPayloadSize("compressed", plan.Size)
		logger.Info().
			Int("originalSize", plan.OriginalSize).
			Int("compressedSize", plan.Size).
			Msg("Call log compressed")
	}

	if plan.TwoPhase {
		return e.exportTwoPhase(ctx, log, apiKey, plan, logger)
	}

	logger.Info().Int("size", plan.Size).Msg("Sending call log in single request")
	var payload any = json.RawMessage(body)
	if plan.Encoded != "" {
		payload = Envelope(plan.Encoded, plan.OriginalSize)
	}
	res := e.send(ctx, "single", apiKey, payload)
	if res.Success {
		res.UploadMethod = MethodSingle
	}
	e.metrics.RecordExport(MethodSingle, res.Success)
	return res
}

func (e *Exporter) exportTwoPhase(ctx context.Context, log *models.CallLog, apiKey string, plan Plan, logger zerolog.Logger) Result {
	logger.Info().
		Int("size", plan.Size).
		Int("threshold", e.cfg.TwoPhaseThreshold).
		Msg("Payload over two-phase threshold, splitting")

	core, detailed := Split(log)

	coreRes := e.sendJSON(ctx, "core", apiKey, core)
	if !coreRes.Success {
		logger.Error().Str("error", coreRes.Error).Msg("Core record send failed")
		e.metrics.RecordExport(MethodTwoPhase, false)
		return coreRes
	}
	logger.Info().Msg("Core record sent, sending detailed record in background")

	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res := e.sendJSON(bg, "detailed", apiKey, detailed)
		if !res.Success {
			e.metrics.RecordPhaseTwoFailure()
			logger.Warn().Str("error", res.Error).Int("status", res.Status).Msg("Detailed record send failed; core record already stored")
			return
		}
		logger.Info().Msg("Detailed record sent")
	}()

	e.metrics.RecordExport(MethodTwoPhase, true)
	return Result{
		Success:        true,
		Status:         http.StatusOK,
		Data:           coreRes.Data,
		UploadMethod:   MethodTwoPhase,
		Phase1Complete: true,
		Phase2Started:  true,
	}
}

// sendJSON serializes v and compresses it when over the threshold.
func (e *Exporter) sendJSON(ctx context.Context, phase, apiKey string, v any) Result {
	body, err := json.Marshal(v)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("JSON serialization failed: %v", err)}
	}
	var payload any = json.RawMessage(body)
	if len(body) > e.cfg.CompressionThreshold {
		if encoded, err := Compress(body); err == nil {
			payload = Envelope(encoded, len(body))
		}
	}
	return e.send(ctx, phase, apiKey, payload)
}

// Wait blocks until background detailed sends have finished.
func (e *Exporter) Wait() {
	e.wg.Wait()
}

func (e *Exporter) send(ctx context.Context, phase, apiKey string, payload any) Result {
	ctx, span := e.tracer.Start(ctx, "export."+phase,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(attribute.String("export.phase", phase)))
	defer span.End()

	start := time.Now()
	res := e.post(ctx, apiKey, payload)
	e.metrics.RecordExportLatency(phase, time.Since(start).Seconds())

	span.SetAttributes(attribute.Int("http.status_code", res.Status))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (e *Exporter) post(ctx context.Context, apiKey string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("JSON serialization failed: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("Request failed: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-pype-token", apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("Request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Success: false, Status: resp.StatusCode, Error: fmt.Sprintf("Request failed: %v", err)}
	}
	if resp.StatusCode >= 400 {
		return Result{Success: false, Status: resp.StatusCode, Error: string(raw)}
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{Success: false, Status: resp.StatusCode, Error: fmt.Sprintf("Request failed: decode response: %v", err)}
	}
	return Result{Success: true, Status: resp.StatusCode, Data: data}
}
