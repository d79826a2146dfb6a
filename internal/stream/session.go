// Package stream turns a provider's incremental output into a cancellable,
// observable event sequence. Sessions are pull-based: the consumer drives
// iteration and the producer suspends between chunks until pulled, so
// backpressure exists by construction rather than by buffering.
package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// State is the lifecycle of a session. Terminal states are never left.
type State string

const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// EventType identifies a stream event.
type EventType string

const (
	EventStart    EventType = "start"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one element of a session's finite, non-restartable sequence:
// start, one or more chunks, then exactly one terminal complete or error.
type Event struct {
	Type         EventType           `json:"type"`
	Text         string              `json:"text,omitempty"`
	FinishReason domain.FinishReason `json:"finish_reason,omitempty"`
	Err          *domain.Error       `json:"error,omitempty"`
}

// Source opens the provider-side chunk channel for a session.
type Source func(ctx context.Context) (<-chan domain.StreamChunk, error)

// Session is a stateful handle over one in-progress generation. One session,
// one consumer: concurrent reads of the same session are not supported. The
// creating caller exclusively owns cancellation; the runtime never cancels
// on its own.
type Session struct {
	id       string
	provider string

	mu    sync.Mutex
	state State

	events    chan Event
	cancelled chan struct{}
	stop      context.CancelFunc
}

// Open creates a session and starts the producer. The handle is returned
// immediately; the first pull of Events drives the connection.
func Open(ctx context.Context, provider string, source Source) *Session {
	producerCtx, stop := context.WithCancel(ctx)
	s := &Session{
		id:        uuid.New().String(),
		provider:  provider,
		state:     StateConnecting,
		events:    make(chan Event), // unbuffered: consumer-paced
		cancelled: make(chan struct{}),
		stop:      stop,
	}
	go s.run(producerCtx, source)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Provider returns the provider identity serving the session.
func (s *Session) Provider() string {
	return s.provider
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the session's event sequence. The channel is closed after
// the terminal event, or without one when the session is cancelled.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Cancel terminates the session. No further events are delivered and the
// underlying transport is closed through context cancellation. Cancelling
// an already-terminal session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.isTerminalLocked() {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	s.mu.Unlock()

	close(s.cancelled)
	s.stop()
}

func (s *Session) isTerminalLocked() bool {
	switch s.state {
	case StateCompleted, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// transition moves to a new state unless a terminal state was reached first.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminalLocked() {
		return false
	}
	s.state = next
	return true
}

// emit delivers one event at the consumer's pace. Returns false once the
// session has been cancelled.
func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.cancelled:
		return false
	}
}

func (s *Session) run(ctx context.Context, source Source) {
	defer s.stop()
	defer close(s.events)

	logger := observability.FromContext(observability.WithStreamSession(ctx, s.id))

	chunks, err := source(ctx)
	if err != nil {
		s.fail(domain.Classify(s.provider, err))
		return
	}

	if !s.emit(Event{Type: EventStart}) {
		return
	}

	finish := domain.FinishStop
	for chunk := range chunks {
		if chunk.Error != nil {
			s.fail(domain.Classify(s.provider, chunk.Error))
			return
		}

		// The first chunk ends the connecting phase even when it carries
		// no text.
		s.transition(StateStreaming)

		if chunk.Delta != "" {
			if !s.emit(Event{Type: EventChunk, Text: chunk.Delta}) {
				return
			}
		}

		if chunk.Done {
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			break
		}
	}

	if s.transition(StateCompleted) {
		logger.Debug("stream completed")
		s.emit(Event{Type: EventComplete, FinishReason: finish})
	}
}

// fail records the error state and delivers the terminal error event.
func (s *Session) fail(cause *domain.Error) {
	if !s.transition(StateError) {
		return
	}
	s.emit(Event{Type: EventError, Err: cause})
}
