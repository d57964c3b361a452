package intake

import (
	"context"
)

// ServiceInterface defines the interface for intake service operations
type ServiceInterface interface {
	// Submit validates an admitted payload and forwards it to the backend
	Submit(ctx context.Context, sub *Submission) (*Receipt, error)
}

// Backend receives validated payloads. It stands in for the hosted database,
// payment processor and support desk that own the actual side effects.
type Backend interface {
	Dispatch(ctx context.Context, action string, data any) error
}

// WindowResetter clears a client's rate-limit window for one action.
type WindowResetter interface {
	Reset(ctx context.Context, identifier, action string) error
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
