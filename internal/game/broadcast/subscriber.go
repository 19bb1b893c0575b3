package broadcast

import (
	"fmt"
	"sync"
)

// Subscriber routes announcements to a buffered channel, bridging the hub to
// whatever transport delivers messages to players.
type Subscriber struct {
	id     string
	events chan Message
	mu     sync.Mutex
	closed bool
}

// NewSubscriber creates a Subscriber with the given buffer size.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a Subscriber with an open events channel.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Subscriber{
		id:     id,
		events: make(chan Message, bufferSize),
	}
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Push enqueues msg without blocking.
//
// Postcondition: Returns an error if the subscriber is closed or its buffer is full.
func (s *Subscriber) Push(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber %s is closed", s.id)
	}
	select {
	case s.events <- msg:
		return nil
	default:
		return fmt.Errorf("subscriber %s event buffer full", s.id)
	}
}

// Events returns the read-only events channel.
func (s *Subscriber) Events() <-chan Message {
	return s.events
}

// Close marks the subscriber as closed and closes the events channel.
//
// Postcondition: Further Push calls return an error. Close is idempotent.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// IsClosed reports whether the subscriber has been closed.
func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
