package realtime

import (
	"context"
	"fmt"

	"github.com/and161185/bazaar/internal/errs"
)

// Offline is the transport used when no realtime endpoint is configured.
type Offline struct{}

var _ Transport = Offline{}

// Connect always fails with ErrNotConfigured.
func (Offline) Connect(context.Context, string, func(Envelope), func(error)) error {
	return fmt.Errorf("realtime: %w", errs.ErrNotConfigured)
}

// Disconnect is a no-op.
func (Offline) Disconnect() error { return nil }

// Send always fails with ErrNotConnected.
func (Offline) Send(context.Context, Envelope) error { return errs.ErrNotConnected }
