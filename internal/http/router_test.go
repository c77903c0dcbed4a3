package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
)

type stubExporter struct {
	keys   []string
	result export.Result
}

func (e *stubExporter) Export(_ context.Context, _ *models.CallLog, apiKey string) export.Result {
	e.keys = append(e.keys, apiKey)
	return e.result
}

func newTestRouter(t *testing.T, result export.Result) (http.Handler, *stubExporter) {
	t.Helper()
	exp := &stubExporter{result: result}
	manager := session.NewManager(session.Config{BugReport: bugreport.DefaultConfig()}, exp, zerolog.Nop())
	return Routes(manager, func() bool { return true }, zerolog.Nop()), exp
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	ready := false
	h := Routes(nil, func() bool { return ready }, zerolog.Nop())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/liveness", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/readiness", "").Code)

	ready = true
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/readiness", "").Code)
}

func TestEventsAndTranscript(t *testing.T) {
	h, _ := newTestRouter(t, export.Result{Success: true})

	rec := do(t, h, http.MethodPost, "/v1/sessions/s1/events",
		`{"type":"conversation_item","role":"user","text":"where is my order"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/sessions/s1/events",
		`{"type":"conversation_item","role":"assistant","text":"It ships Monday."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/sessions/s1/events", `{"type":"user_transcript","text":"report bug"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.EventResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Suppressed)
	require.Len(t, res.Say, 1)
	assert.False(t, res.Say[0].AddToHistory)

	rec = do(t, h, http.MethodGet, "/v1/sessions/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":["s1"],"count":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/sessions/s1/transcript", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Turns, 1)
	assert.Equal(t, "It ships Monday.", view.Turns[0].AgentResponse)
	assert.Equal(t, bugreport.StateCollecting.String(), view.BugReportState)

	rec = do(t, h, http.MethodGet, "/v1/sessions/s1/transcript?format=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONVERSATION TRANSCRIPT")
	assert.Contains(t, rec.Body.String(), "AGENT: It ships Monday.")
}

func TestEventErrors(t *testing.T) {
	h, _ := newTestRouter(t, export.Result{Success: true})

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"malformed json", "/v1/sessions/s1/events", `{`, http.StatusBadRequest},
		{"mismatched session", "/v1/sessions/s1/events", `{"session_id":"s2","type":"close"}`, http.StatusBadRequest},
		{"unknown type", "/v1/sessions/s1/events", `{"type":"bogus"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/sessions/nope/transcript", "").Code)
}

func TestExport(t *testing.T) {
	h, exp := newTestRouter(t, export.Result{Success: true, Status: 200, UploadMethod: export.MethodSingle})

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/sessions/s1/events",
		`{"type":"conversation_item","role":"user","text":"hi"}`).Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/export", nil)
	req.Header.Set("x-pype-token", "header-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"status":200,"upload_method":"single"}`, rec.Body.String())
	assert.Equal(t, []string{"header-key"}, exp.keys)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/sessions/s1/export", "").Code)
}

func TestExport_FailedUpload(t *testing.T) {
	h, exp := newTestRouter(t, export.Result{Success: false, Error: "Request failed: boom"})

	do(t, h, http.MethodPost, "/v1/sessions/s1/events", `{"type":"conversation_item","role":"user","text":"hi"}`)
	rec := do(t, h, http.MethodPost, "/v1/sessions/s1/export", `{"api_key":"body-key","recording_url":"https://rec/1"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request failed: boom")
	assert.Equal(t, []string{"body-key"}, exp.keys)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/sessions/s2/export", `nope`).Code)
}
