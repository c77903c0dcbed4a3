package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// readEvents parses one JSON envelope per line. Blank lines and lines
// starting with # are skipped. A non-empty sessionID replaces every
// envelope's session.
func readEvents(r io.Reader, sessionID string) ([]models.Envelope, error) {
	var out []models.Envelope
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var env models.Envelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if sessionID != "" {
			env.SessionID = sessionID
		}
		out = append(out, env)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// demoCall is a short support call with one bug report in the middle.
func demoCall(sessionID string, start float64) []models.Envelope {
	at := func(offset float64) float64 { return start + offset }
	user := func(offset float64, text string) []models.Envelope {
		return []models.Envelope{
			{SessionID: sessionID, Type: models.EventUserTranscript, Timestamp: at(offset), Text: text, Confidence: 0.95},
		}
	}
	agent := func(offset float64, text string, prompt, completion int) []models.Envelope {
		return []models.Envelope{
			{SessionID: sessionID, Type: models.EventMetrics, Timestamp: at(offset), Metrics: &models.MetricsPayload{
				Kind: models.KindLLM, PromptTokens: prompt, CompletionTokens: completion, TTFT: 0.42, Duration: 1.1, Timestamp: at(offset),
			}},
			{SessionID: sessionID, Type: models.EventMetrics, Timestamp: at(offset + 0.2), Metrics: &models.MetricsPayload{
				Kind: models.KindTTS, CharactersCount: len(text), AudioDuration: float64(len(text)) / 15, TTFB: 0.18, Duration: 0.6, Timestamp: at(offset + 0.2),
			}},
			{SessionID: sessionID, Type: models.EventConversationItem, Timestamp: at(offset + 0.3), Role: models.RoleAssistant, Text: text},
		}
	}
	speech := func(offset, audio float64) []models.Envelope {
		return []models.Envelope{
			{SessionID: sessionID, Type: models.EventMetrics, Timestamp: at(offset), Metrics: &models.MetricsPayload{
				Kind: models.KindSTT, AudioDuration: audio, Duration: 0.3, Timestamp: at(offset),
			}},
			{SessionID: sessionID, Type: models.EventMetrics, Timestamp: at(offset), Metrics: &models.MetricsPayload{
				Kind: models.KindEOU, EndOfUtteranceDelay: 0.5, TranscriptionDelay: 0.2, Timestamp: at(offset),
			}},
		}
	}

	var events []models.Envelope
	add := func(envs ...[]models.Envelope) {
		for _, e := range envs {
			events = append(events, e...)
		}
	}

	add([]models.Envelope{{
		SessionID: sessionID,
		Type:      models.EventSessionStart,
		Timestamp: at(0),
		Start: &models.SessionStart{
			CallID:         "demo-" + sessionID,
			AgentID:        "demo-agent",
			CustomerNumber: "+10000000000",
			Models: models.PipelineModels{
				STT: &models.ModelDescriptor{Name: "nova-2", ProviderName: "deepgram"},
				LLM: &models.ModelDescriptor{Name: "gpt-4o-mini", ProviderName: "openai"},
				TTS: &models.ModelDescriptor{Name: "sonic", ProviderName: "cartesia", Voice: "demo-voice"},
			},
		},
	}})
	add(speech(1, 1.8), user(1.2, "Hi, where is my order?"),
		agent(2, "Your order ships on Monday.", 220, 18))
	add(user(6, "I found a bug"), user(8, "the tracking link is broken"), user(11, "feedback over"))
	add(speech(14, 1.2), user(14.2, "Thanks, that's all."),
		agent(15, "Happy to help. Goodbye!", 260, 12))
	add([]models.Envelope{{SessionID: sessionID, Type: models.EventClose, Timestamp: at(20)}})
	return events
}
