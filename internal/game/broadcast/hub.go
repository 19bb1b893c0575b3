// Package broadcast fans server-wide announcements out to subscribers.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Tier is the delivery priority of an announcement.
type Tier int

const (
	// TierImmediate is delivered to everyone at once.
	TierImmediate Tier = 1
	// TierBatched may be folded into a recap for offline players.
	TierBatched Tier = 2
)

// String returns a human-readable tier label.
func (t Tier) String() string {
	switch t {
	case TierImmediate:
		return "immediate"
	case TierBatched:
		return "batched"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Message is one announcement.
type Message struct {
	Tier Tier
	Text string
	At   time.Time
}

// defaultHistory bounds the recent-message log.
const defaultHistory = 100

// Hub fans announcements out to subscribers and keeps a short history.
// All methods are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	history []Message
	limit   int
	now     func() time.Time
	logger  *zap.Logger
}

// NewHub creates a Hub that truncates messages to limit runes.
//
// Precondition: limit >= 1; logger must be non-nil.
func NewHub(limit int, logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscriber),
		limit:  limit,
		now:    time.Now,
		logger: logger,
	}
}

// Subscribe registers a new subscriber.
//
// Postcondition: Returns an error if id is already subscribed.
func (h *Hub) Subscribe(id string, bufferSize int) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		return nil, fmt.Errorf("subscriber %q already registered", id)
	}
	s := NewSubscriber(id, bufferSize)
	h.subs[id] = s
	return s, nil
}

// Unsubscribe removes and closes the subscriber with id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// Announce truncates text and delivers it to every subscriber.
// Delivery failures are logged and never returned; announcements are not retried.
//
// Postcondition: The message is appended to History.
func (h *Hub) Announce(_ context.Context, tier Tier, text string) {
	msg := Message{Tier: tier, Text: Truncate(text, h.limit), At: h.now()}

	h.mu.Lock()
	h.history = append(h.history, msg)
	if len(h.history) > defaultHistory {
		h.history = h.history[len(h.history)-defaultHistory:]
	}
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	h.logger.Info("broadcast",
		zap.Stringer("tier", tier),
		zap.String("text", msg.Text),
	)
	for _, s := range subs {
		if err := s.Push(msg); err != nil {
			h.logger.Warn("broadcast delivery failed",
				zap.String("subscriber", s.ID()),
				zap.Error(err),
			)
		}
	}
}

// History returns up to n of the most recent announcements, oldest first.
func (h *Hub) History(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.history) {
		n = len(h.history)
	}
	out := make([]Message, n)
	copy(out, h.history[len(h.history)-n:])
	return out
}

// Truncate shortens text to at most limit runes.
//
// Postcondition: utf8.RuneCountInString(result) <= limit when limit > 0.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
