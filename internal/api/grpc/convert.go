package grpcapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/schema"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
)

// DecodeEnvelope converts a Struct into an event envelope.
func DecodeEnvelope(st *structpb.Struct) (models.Envelope, error) {
	var env models.Envelope
	if err := FromStruct(st, &env); err != nil {
		return env, fmt.Errorf("%w: %w", schema.ErrInvalidEvent, err)
	}
	return env, nil
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(st *structpb.Struct, v any) error {
	if st == nil {
		return errors.New("empty message")
	}
	data, err := st.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ToStruct encodes any JSON-serializable value as a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// statusFor maps session errors to gRPC status codes.
func statusFor(err error) error {
	switch {
	case errors.Is(err, schema.ErrInvalidEvent),
		errors.Is(err, session.ErrUnknownEventType),
		errors.Is(err, models.ErrUnknownMetricKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrSessionExported):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
