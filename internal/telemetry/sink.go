// Package telemetry is a fire-and-forget event sink. Emitting never blocks
// the caller; events are dropped when the buffer is full.
package telemetry

import (
	"sync"
	"time"

	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Event is one telemetry record.
type Event struct {
	Name      string
	SessionID string
	Fields    map[string]interface{}
	At        time.Time
}

// Sink consumes telemetry events.
type Sink interface {
	Emit(ev Event)
}

// LogSink writes events to the telemetry log category through a buffered
// channel drained by one goroutine.
type LogSink struct {
	ch      chan Event
	done    chan struct{}
	dropped int
	mu      sync.Mutex
	closed  bool
}

// NewLogSink creates a sink with the given buffer size.
func NewLogSink(buffer int) *LogSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &LogSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *LogSink) drain() {
	defer close(s.done)
	log := logging.Get(logging.CategoryTelemetry)
	for ev := range s.ch {
		log.Info("%s session=%s fields=%v", ev.Name, ev.SessionID, ev.Fields)
	}
}

// Emit enqueues an event, dropping it when the buffer is full. The mutex is
// held across the send so a concurrent Close cannot close the channel
// between the closed-check and the send.
func (s *LogSink) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}

// Record adapts the sink to the risk control recorder: one named event tagged
// with the question it concerns.
func (s *LogSink) Record(event, questionID string) {
	s.Emit(Event{Name: event, Fields: map[string]interface{}{"questionId": questionID}})
}

// Dropped reports how many events were discarded due to backpressure.
func (s *LogSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close drains and stops the sink.
func (s *LogSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ch)
	<-s.done
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) Emit(Event) {}
