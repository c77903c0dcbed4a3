package turns

import (
	"encoding/json"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// Tool call status values.
const (
	ToolStatusCalled  = "called"
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// OnFunctionCalls records tool invocations requested by the model on the open turn.
// Calls arriving with no open turn are not recorded.
func (c *Collector) OnFunctionCalls(calls []models.FunctionCall) {
	if c.current == nil {
		c.logger.Debug().Int("calls", len(calls)).Msg("Function calls without an open turn ignored")
		return
	}
	ts := trace.UnixSeconds(c.now())
	for _, fc := range calls {
		c.current.ToolCalls = append(c.current.ToolCalls, models.ToolCall{
			Name:      fc.Name,
			Arguments: fc.Arguments,
			CallID:    fc.CallID,
			Timestamp: ts,
			Status:    ToolStatusCalled,
		})
	}
	c.dirty = true
}

// OnToolsExecuted records executed tools with their output and a tool_call span each.
func (c *Collector) OnToolsExecuted(execs []models.ToolExecution) {
	if c.current == nil {
		c.logger.Debug().Int("tools", len(execs)).Msg("Tool executions without an open turn ignored")
		return
	}
	for _, exec := range execs {
		call, span := c.toolRecord(exec)
		c.current.ToolCalls = append(c.current.ToolCalls, call)
		trace.EnsureTraceID(c.current)
		c.current.OtelSpans = append(c.current.OtelSpans, span)
		c.metrics.RecordToolCall(call.Status)

		ev := c.logger.Info().
			Str("turnId", c.current.TurnID).
			Str("tool", call.Name).
			Int64("durationMs", call.ExecutionDurationMs).
			Int("resultLength", call.ResultLength)
		if call.Error != "" {
			ev = ev.Str("toolError", call.Error)
		}
		ev.Msg("Tool executed")
	}
	c.dirty = true
}

func (c *Collector) toolRecord(exec models.ToolExecution) (models.ToolCall, models.Span) {
	now := trace.UnixSeconds(c.now())
	start, end := exec.StartTime, exec.EndTime
	if start == 0 {
		start = now
	}
	if end == 0 {
		end = now
	}
	elapsed := end - start

	var args any = exec.Arguments
	var parsed any
	if err := json.Unmarshal([]byte(exec.Arguments), &parsed); err == nil {
		args = parsed
	}

	status := ToolStatusSuccess
	errMsg := exec.Error
	if errMsg == "" && exec.IsError {
		errMsg = exec.Output
	}
	if errMsg != "" {
		status = ToolStatusError
	}

	call := models.ToolCall{
		Name:                exec.Name,
		Arguments:           args,
		RawArguments:        exec.Arguments,
		CallID:              exec.CallID,
		Timestamp:           start,
		ExecutionStart:      start,
		ExecutionEnd:        end,
		ExecutionDurationMs: int64(elapsed * 1000),
		Status:              status,
		Result:              exec.Output,
		Error:               errMsg,
		ResultLength:        len(exec.Output),
	}

	span := models.Span{
		SpanID:     trace.NewSpanID("tool_" + exec.Name),
		Operation:  models.OperationToolCall,
		StartTime:  start,
		DurationMs: call.ExecutionDurationMs,
		Status:     status,
		Metadata: map[string]any{
			"function_name":        exec.Name,
			"arguments":            args,
			"raw_arguments":        exec.Arguments,
			"result_length":        call.ResultLength,
			"call_id":              exec.CallID,
			"execution_duration_s": elapsed,
			"has_error":            status == ToolStatusError,
			"error_message":        errMsg,
			"latency_category":     LatencyCategory(elapsed),
			"result_size_category": ResultSizeCategory(call.ResultLength),
		},
	}
	return call, span
}

// LatencyCategory buckets a tool execution time in seconds.
func LatencyCategory(seconds float64) string {
	switch {
	case seconds < 1:
		return "fast"
	case seconds < 3:
		return "medium"
	}
	return "slow"
}

// ResultSizeCategory buckets a tool result length in characters.
func ResultSizeCategory(n int) string {
	switch {
	case n < 100:
		return "small"
	case n < 500:
		return "medium"
	}
	return "large"
}
