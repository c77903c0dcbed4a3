package evaluation

import (
	"context"
	"strings"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// TypeCoverage is the built-in response coverage evaluation.
const TypeCoverage = "coverage"

// Coverage scores how many user utterances received a non-empty agent reply
// before the next user utterance.
func Coverage(_ context.Context, in Input) (Score, error) {
	var asked, answered int
	pending := false
	for _, e := range in.Transcript {
		switch e.Role {
		case models.RoleUser:
			if pending {
				asked++
			}
			pending = true
		case models.RoleAssistant:
			if pending && strings.TrimSpace(e.Content) != "" {
				asked++
				answered++
				pending = false
			}
		}
	}
	if pending {
		asked++
	}

	score := Score{Criteria: map[string]float64{
		"user_utterances": float64(asked),
		"answered":        float64(answered),
	}}
	if asked > 0 {
		score.Overall = float64(answered) / float64(asked)
	}
	return score, nil
}
