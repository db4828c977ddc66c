// Package audit records issued deletions to durable append-only logs.
package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// Sink appends deletion records. Sinks are never read by the coordinator.
type Sink interface {
	// Append writes one record.
	Append(ctx context.Context, rec resource.DeletionRecord) error

	// Close releases the sink.
	Close() error
}

// MultiSink fans out to multiple sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that writes to every given sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append writes to all sinks and joins their errors.
func (m *MultiSink) Append(ctx context.Context, rec resource.DeletionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every record. Used by dry runs.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, resource.DeletionRecord) error { return nil }
func (discard) Close() error { return nil }

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []resource.DeletionRecord
	err     error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Fail makes Append return err until cleared with nil.
func (m *MemorySink) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Append stores rec.
func (m *MemorySink) Append(_ context.Context, rec resource.DeletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything appended.
func (m *MemorySink) Records() []resource.DeletionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]resource.DeletionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Close is a no-op.
func (m *MemorySink) Close() error {
	return nil
}
