package escalate

import (
	"context"
	"errors"
)

// MultiSink fans a report out to every configured sink. Each sink gets its
// own attempt; one failure does not stop the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify delivers to all sinks and joins any errors.
func (m *MultiSink) Notify(ctx context.Context, report *Report) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
