package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

type capture struct {
	mu       sync.Mutex
	bodies   []map[string]any
	tokens   []string
	statuses []int
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))

		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.tokens = append(c.tokens, r.Header.Get("x-pype-token"))
		status := http.StatusOK
		if n := len(c.bodies) - 1; n < len(c.statuses) {
			status = c.statuses[n]
		}
		c.mu.Unlock()

		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}
}

func (c *capture) requests() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.bodies...)
}

func sampleLog(lines int) *models.CallLog {
	ttft := 0.4
	cost := 0.0025
	dur := int64(1200)
	turns := []models.ConversationTurn{{
		TurnID:         "turn_1",
		UserTranscript: "hello",
		AgentResponse:  "hi there",
		LLMMetrics:     &models.LLMMetrics{PromptTokens: 1000, CompletionTokens: 500, TTFT: ttft},
		TraceID:        "trace_abc",
		OtelSpans: []models.Span{
			{SpanID: "span_llm_1", Operation: "llm", StartTime: 1, DurationMs: 1200, Status: models.SpanStatusSuccess},
		},
		TraceDurationMs: &dur,
		TraceCostUSD:    &cost,
	}}
	transcript := make([]models.TranscriptEntry, 0, lines)
	for i := 0; i < lines; i++ {
		transcript = append(transcript, models.TranscriptEntry{Role: "user", Content: strings.Repeat("lorem ipsum ", 10)})
	}
	return &models.CallLog{
		CallID:                "call-1",
		AgentID:               "agent-1",
		DurationSeconds:       42.9,
		TranscriptJSON:        transcript,
		TranscriptWithMetrics: turns,
		TelemetryData:         BuildTelemetry(turns),
		Metadata:              map[string]any{"usage": map[string]any{"llm_tokens": 1500}, "duration_formatted": "0:42"},
	}
}

func newTestExporter(url string, cfg Config) *Exporter {
	cfg.APIURL = url
	return New(cfg, zerolog.Nop())
}

func TestExport_MissingAPIKey(t *testing.T) {
	e := newTestExporter("http://127.0.0.1:1", Config{})

	res := e.Export(context.Background(), sampleLog(1), "")
	assert.False(t, res.Success)
	assert.Equal(t, "API key not provided and WHISPEY_API_KEY environment variable not set", res.Error)
}

func TestExport_SmallPayloadUncompressed(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()
	e := newTestExporter(srv.URL, Config{APIKey: "configured"})

	res := e.Export(context.Background(), sampleLog(1), "override")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, MethodSingle, res.UploadMethod)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, map[string]any{"message": "ok"}, res.Data)

	reqs := c.requests()
	require.Len(t, reqs, 1)
	c.mu.Lock()
	assert.Equal(t, []string{"override"}, c.tokens)
	c.mu.Unlock()
	assert.Nil(t, reqs[0]["compressed"])
	assert.Equal(t, "call-1", reqs[0]["call_id"])
	assert.Equal(t, "completed", reqs[0]["call_ended_reason"])
	assert.Equal(t, "dev", reqs[0]["environment"])
}

func TestExport_LargePayloadCompressed(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()
	e := newTestExporter(srv.URL, Config{APIKey: "k"})

	res := e.Export(context.Background(), sampleLog(200), "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, MethodSingle, res.UploadMethod)

	reqs := c.requests()
	require.Len(t, reqs, 1)
	body := reqs[0]
	assert.Equal(t, true, body["compressed"])
	original := body["original_size"].(float64)
	compressed := body["compressed_size"].(float64)
	assert.Greater(t, original, float64(DefaultCompressionThreshold))
	assert.Less(t, compressed, original)

	raw, err := base64.StdEncoding.DecodeString(body["data"].(string))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Len(t, decoded, int(original))
	assert.Contains(t, string(decoded), `"call_id":"call-1"`)
}

func serializedSize(t *testing.T, log *models.CallLog) int {
	t.Helper()
	Normalize(log)
	body, err := json.Marshal(log)
	require.NoError(t, err)
	return len(body)
}

func TestExport_TwoPhaseBoundary(t *testing.T) {
	size := serializedSize(t, sampleLog(3))

	t.Run("exactly at threshold sends once", func(t *testing.T) {
		c := &capture{}
		srv := httptest.NewServer(c.handler(t))
		defer srv.Close()
		e := newTestExporter(srv.URL, Config{APIKey: "k", CompressionThreshold: 1 << 30, TwoPhaseThreshold: size})

		res := e.Export(context.Background(), sampleLog(3), "")
		e.Wait()
		require.True(t, res.Success, res.Error)
		assert.Equal(t, MethodSingle, res.UploadMethod)
		assert.Len(t, c.requests(), 1)
	})

	t.Run("one byte above splits", func(t *testing.T) {
		c := &capture{}
		srv := httptest.NewServer(c.handler(t))
		defer srv.Close()
		e := newTestExporter(srv.URL, Config{APIKey: "k", CompressionThreshold: 1 << 30, TwoPhaseThreshold: size - 1})

		res := e.Export(context.Background(), sampleLog(3), "")
		e.Wait()
		require.True(t, res.Success, res.Error)
		assert.Equal(t, MethodTwoPhase, res.UploadMethod)
		assert.True(t, res.Phase1Complete)
		assert.True(t, res.Phase2Started)

		reqs := c.requests()
		require.Len(t, reqs, 2)
		core := reqs[0]
		assert.NotContains(t, core, "transcript_with_metrics")
		assert.NotContains(t, core, "telemetry_data")
		assert.Contains(t, core, "summary_metrics")
		assert.Contains(t, core, "telemetry_summary")
		assert.Equal(t, float64(42), core["duration_seconds"])

		detailed := reqs[1]
		assert.Equal(t, models.UpdateTypeDetailedTelemetry, detailed["update_type"])
		assert.Contains(t, detailed, "transcript_with_metrics")
		assert.Contains(t, detailed, "telemetry_data")
	})
}

func TestExport_CoreFailureIsReported(t *testing.T) {
	c := &capture{statuses: []int{http.StatusBadGateway}}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()
	e := newTestExporter(srv.URL, Config{APIKey: "k", TwoPhaseThreshold: 10})

	res := e.Export(context.Background(), sampleLog(1), "")
	e.Wait()
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Equal(t, "upstream exploded", res.Error)
	assert.Len(t, c.requests(), 1)
}

func TestExport_DetailedFailureDoesNotAffectResult(t *testing.T) {
	c := &capture{statuses: []int{http.StatusOK, http.StatusInternalServerError}}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()
	e := newTestExporter(srv.URL, Config{APIKey: "k", TwoPhaseThreshold: 10})

	res := e.Export(context.Background(), sampleLog(1), "")
	e.Wait()
	assert.True(t, res.Success)
	assert.Equal(t, MethodTwoPhase, res.UploadMethod)
	assert.Len(t, c.requests(), 2)
}

func TestExport_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	e := newTestExporter(url, Config{APIKey: "k"})

	res := e.Export(context.Background(), sampleLog(1), "")
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "Request failed:"), res.Error)
}

func TestPlanFor(t *testing.T) {
	e := New(Config{CompressionThreshold: 1 << 20, TwoPhaseThreshold: 8}, zerolog.Nop())

	assert.False(t, e.PlanFor([]byte("12345678")).TwoPhase)
	assert.True(t, e.PlanFor([]byte("123456789")).TwoPhase)
	assert.Empty(t, e.PlanFor([]byte("123456789")).Encoded)
}
