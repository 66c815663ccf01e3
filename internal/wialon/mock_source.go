package wialon

import (
	"context"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// MockSource is a test double that returns whatever has been queued via
// Push, one batch per Poll call. It never errors unless told to.
type MockSource struct {
	batches []([]types.RawReading)
	err     error
	calls   int
}

// NewMockSource builds an empty MockSource; queue batches with Push before
// the component under test calls Poll.
func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Name() string { return "wialon-mock" }

// Push queues one batch of readings to be returned by the next Poll call.
func (m *MockSource) Push(readings ...types.RawReading) {
	m.batches = append(m.batches, readings)
}

// FailNextWith makes the next Poll call return err instead of a batch.
func (m *MockSource) FailNextWith(err error) {
	m.err = err
}

// Poll returns the next queued batch (empty slice once exhausted) or the
// queued error.
func (m *MockSource) Poll(ctx context.Context) ([]types.RawReading, error) {
	m.calls++
	if m.err != nil {
		err := m.err
		m.err = nil
		return nil, err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	next := m.batches[0]
	m.batches = m.batches[1:]
	return next, nil
}

// CallCount reports how many times Poll has been invoked.
func (m *MockSource) CallCount() int { return m.calls }
