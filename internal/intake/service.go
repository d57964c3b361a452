// Package intake is the last step of admission: schema validation of the
// sanitized payload, then hand-off to the downstream backend.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/sanitize"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/validation"
)

// LoginAction is reset after a successful sign-in so earlier failed attempts
// stop counting against the client.
const LoginAction = "login"

// Submission is one admitted request.
type Submission struct {
	Action     string
	Schema     validation.Name
	Identifier string
	RequestID  string
	Payload    any
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	Reference  string
	Action     string
	Data       any
	AcceptedAt time.Time
}

// Redacted returns the receipt data as plain JSON values with sensitive
// fields replaced, suitable for echoing back to the client.
func (r *Receipt) Redacted() any {
	if r.Data == nil {
		return nil
	}
	return sanitize.ForLogging(toLoggable(r.Data))
}

// Service handles validation and dispatch of admitted payloads
type Service struct {
	backend  Backend
	resetter WindowResetter
	now      func() time.Time
}

// NewService creates a new intake service. resetter may be nil.
func NewService(backend Backend, resetter WindowResetter) *Service {
	return &Service{
		backend:  backend,
		resetter: resetter,
		now:      time.Now,
	}
}

// Submit validates sub.Payload against sub.Schema. Invalid payloads never
// reach the backend.
func (s *Service) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	if sub == nil {
		return nil, NewInvalidRequestError("submission is required", nil)
	}

	result := validation.Validate(sub.Schema, sub.Payload)
	if !result.Success {
		return nil, NewValidationError("Validation failed", result.Err())
	}

	if err := s.backend.Dispatch(ctx, sub.Action, result.Data); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, NewUnavailableError("backend did not respond in time", err)
		}
		return nil, NewUnavailableError("backend rejected the request", err)
	}

	if sub.Action == LoginAction && s.resetter != nil {
		if err := s.resetter.Reset(ctx, sub.Identifier, LoginAction); err != nil {
			slog.Warn("Failed to reset login window",
				"identifier", sub.Identifier,
				"error", err,
			)
		}
	}

	return &Receipt{
		Reference:  uuid.NewString(),
		Action:     sub.Action,
		Data:       result.Data,
		AcceptedAt: s.now(),
	}, nil
}

// LogBackend writes each dispatched payload to the log with sensitive
// fields redacted. It is the backend used when no downstream is wired.
type LogBackend struct {
	logger *slog.Logger
}

func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger}
}

func (b *LogBackend) Dispatch(ctx context.Context, action string, data any) error {
	b.logger.InfoContext(ctx, "Dispatching admitted payload",
		"action", action,
		"payload", sanitize.ForLogging(toLoggable(data)),
	)
	return nil
}

// toLoggable turns a typed payload into plain maps so that redaction can see
// its field names.
func toLoggable(data any) any {
	raw, err := json.Marshal(data)
	if err != nil {
		return "[UNLOGGABLE]"
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return "[UNLOGGABLE]"
	}
	return out
}
