// Package wialon abstracts the fleet telemetry feed behind a single
// interface so the scheduler and orchestrator never know whether readings
// came from a live polled API, a websocket push, or a recorded file.
package wialon

import (
	"context"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// Source produces raw telemetry readings for a set of trucks. Poll is the
// required path; Subscribe is optional push-style delivery for sources that
// support it (a gorilla/websocket feed, say) -- callers fall back to Poll
// when a Source doesn't implement Subscriber.
type Source interface {
	// Poll fetches whatever new readings are available across every truck
	// this source knows about since the last call.
	Poll(ctx context.Context) ([]types.RawReading, error)

	// Name identifies the source for logging and circuit-breaker naming.
	Name() string
}

// Subscriber is the optional push-style extension to Source.
type Subscriber interface {
	// Subscribe streams readings onto ch until ctx is cancelled or the
	// underlying connection drops, at which point it returns the error (nil
	// on a clean ctx cancellation).
	Subscribe(ctx context.Context, ch chan<- types.RawReading) error
}
