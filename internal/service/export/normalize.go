package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// Defaults applied to outgoing call logs.
const (
	DefaultCallEndedReason = "completed"
	DefaultEnvironment     = "dev"
)

// Timestamp renders a timestamp of any supported representation as RFC 3339.
// Strings are passed through; numbers are Unix seconds. Nil and zero values
// render as the empty string.
func Timestamp(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return Timestamp(*t)
	case float64:
		return unixSeconds(t)
	case float32:
		return unixSeconds(float64(t))
	case int:
		return unixSeconds(float64(t))
	case int64:
		return unixSeconds(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return unixSeconds(f)
	}
	return fmt.Sprint(v)
}

func unixSeconds(s float64) string {
	if s == 0 {
		return ""
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(time.RFC3339Nano)
}

// Normalize fills defaulted fields of log in place.
func Normalize(log *models.CallLog) {
	if log.CallEndedReason == "" {
		log.CallEndedReason = DefaultCallEndedReason
	}
	if log.Environment == "" {
		log.Environment = DefaultEnvironment
	}
	if log.TranscriptJSON == nil {
		log.TranscriptJSON = []models.TranscriptEntry{}
	}
	if log.TranscriptWithMetrics == nil {
		log.TranscriptWithMetrics = []models.ConversationTurn{}
	}
	if log.Metadata == nil {
		log.Metadata = map[string]any{}
	}
}
