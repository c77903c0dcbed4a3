package grpcapi

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
)

// Sessions is the session manager as seen by the transport.
type Sessions interface {
	Handle(ctx context.Context, env models.Envelope) (models.EventResult, error)
	Export(ctx context.Context, sessionID string, opts session.ExportOptions) (export.Result, error)
}

// ExportRequest is the body of an Export call.
type ExportRequest struct {
	SessionID    string `json:"session_id"`
	RecordingURL string `json:"recording_url,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}

// StreamAck is returned when an event stream ends.
type StreamAck struct {
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Results   []EventOutcome `json:"results"`
	Sessions  []string       `json:"session_ids"`
}

// EventOutcome is the result of one streamed event.
type EventOutcome struct {
	models.EventResult
	Error string `json:"error,omitempty"`
}

// Server implements SessionEventsServer on top of a session manager.
type Server struct {
	sessions Sessions
	logger   zerolog.Logger
}

// NewServer creates a server dispatching to sessions.
func NewServer(sessions Sessions, logger zerolog.Logger) *Server {
	return &Server{
		sessions: sessions,
		logger:   logging.WithComponent(logger, "grpc-ingest"),
	}
}

// Register registers s on g.
func Register(g *grpc.Server, s *Server) {
	RegisterSessionEventsServer(g, s)
}

// StreamEvents applies events in arrival order. A bad event is reported in
// the ack and does not end the stream.
func (s *Server) StreamEvents(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx := stream.Context()
	ack := StreamAck{Results: []EventOutcome{}, Sessions: []string{}}
	seen := map[string]bool{}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		outcome := s.apply(ctx, msg)
		ack.Processed++
		if outcome.Error != "" {
			ack.Failed++
		}
		if id := outcome.SessionID; id != "" && !seen[id] {
			seen[id] = true
			ack.Sessions = append(ack.Sessions, id)
		}
		ack.Results = append(ack.Results, outcome)
	}

	s.logger.Info().
		Int("processed", ack.Processed).
		Int("failed", ack.Failed).
		Strs("sessions", ack.Sessions).
		Msg("Event stream completed")

	out, err := ToStruct(ack)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendAndClose(out)
}

func (s *Server) apply(ctx context.Context, msg *structpb.Struct) EventOutcome {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		return EventOutcome{Error: err.Error()}
	}
	res, err := s.sessions.Handle(ctx, env)
	if err != nil {
		res.SessionID, res.Type = env.SessionID, env.Type
		return EventOutcome{EventResult: res, Error: err.Error()}
	}
	return EventOutcome{EventResult: res}
}

// SendEvent handles one envelope; interceptor speech is in the response.
func (s *Server) SendEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := DecodeEnvelope(in)
	if err != nil {
		return nil, statusFor(err)
	}
	res, err := s.sessions.Handle(ctx, env)
	if err != nil {
		return nil, statusFor(err)
	}
	out, err := ToStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Export finalizes a session and returns the export result map. A failed
// upload is a successful call with success=false.
func (s *Server) Export(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExportRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}

	res, err := s.sessions.Export(ctx, req.SessionID, session.ExportOptions{
		RecordingURL: req.RecordingURL,
		APIKey:       req.APIKey,
	})
	if err != nil {
		return nil, statusFor(err)
	}
	out, err := ToStruct(res.Map())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
