// Package schema validates inbound session events before dispatch.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// Validator checks that an envelope carries the fields its type requires.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns nil or an error wrapping ErrInvalidEvent that lists every
// problem found.
func (v *Validator) Validate(env *models.Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: empty envelope", ErrInvalidEvent)
	}

	var errs []error
	if env.SessionID == "" {
		errs = append(errs, errors.New("session_id is required"))
	}

	switch env.Type {
	case models.EventSessionStart:
		if env.Start == nil {
			errs = append(errs, errors.New("start is required"))
		} else if env.Start.AgentID == "" {
			errs = append(errs, errors.New("start.agent_id is required"))
		}
	case models.EventConversationItem:
		if env.Role != models.RoleUser && env.Role != models.RoleAssistant {
			errs = append(errs, fmt.Errorf("role %q must be %q or %q", env.Role, models.RoleUser, models.RoleAssistant))
		}
	case models.EventUserTranscript:
		if env.Text == "" {
			errs = append(errs, errors.New("text is required"))
		}
	case models.EventMetrics:
		if env.Metrics == nil {
			errs = append(errs, errors.New("metrics is required"))
		} else if !env.Metrics.Kind.Valid() {
			errs = append(errs, fmt.Errorf("metrics.kind %q is not one of %v", env.Metrics.Kind, models.MetricKinds))
		}
	case models.EventFunctionCallsCollected:
		if len(env.FunctionCalls) == 0 {
			errs = append(errs, errors.New("function_calls must not be empty"))
		}
		for i, fc := range env.FunctionCalls {
			if fc.Name == "" {
				errs = append(errs, fmt.Errorf("function_calls[%d].name is required", i))
			}
		}
	case models.EventFunctionToolsExecuted:
		if len(env.Tools) == 0 {
			errs = append(errs, errors.New("tools must not be empty"))
		}
		for i, tl := range env.Tools {
			if tl.Name == "" {
				errs = append(errs, fmt.Errorf("tools[%d].name is required", i))
			}
		}
	case models.EventUserState, models.EventAgentState:
		if env.NewState == "" {
			errs = append(errs, errors.New("new_state is required"))
		}
	case models.EventClose, models.EventExport:
	default:
		errs = append(errs, fmt.Errorf("unknown event type %q", env.Type))
	}

	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
		log.Debug().Err(err).Str("sessionId", env.SessionID).Str("type", string(env.Type)).Msg("Event rejected")
		return err
	}
	return nil
}
