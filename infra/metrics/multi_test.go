package metrics

import (
	"errors"
	"testing"

	"github.com/kilianp07/skybridge/core/events"
	coremetrics "github.com/kilianp07/skybridge/core/metrics"
)

type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordSample(events.SamplePublished) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordCommand(events.CommandHandled) error {
	r.count++
	return r.err
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2, coremetrics.NopSink{})
	if err := m.RecordSample(events.SamplePublished{}); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if err := m.RecordCommand(events.CommandHandled{}); err != nil {
		t.Fatalf("record command: %v", err)
	}
	if err := m.RecordLoopError(events.LoopError{}); err != nil {
		t.Fatalf("record loop error: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("events not forwarded")
	}
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recordSink{}
	m := NewMultiSink(&recordSink{err: boom}, ok)
	if err := m.RecordSample(events.SamplePublished{}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.count != 1 {
		t.Fatalf("healthy sink skipped")
	}
}
