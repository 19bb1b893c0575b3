// Package epoch maps wall-clock time onto numbered epoch days and notifies
// subscribers when a new day begins.
package epoch

import (
	"sync"
	"time"
)

// Calendar converts wall-clock time to a 1-based epoch day number.
type Calendar struct {
	start     time.Time
	dayLength time.Duration
}

// NewCalendar creates a Calendar anchored at start.
//
// Precondition: dayLength > 0.
func NewCalendar(start time.Time, dayLength time.Duration) *Calendar {
	return &Calendar{start: start, dayLength: dayLength}
}

// DayNumber returns the epoch day containing now.
//
// Postcondition: Returns >= 1; times before the anchor are day 1.
func (c *Calendar) DayNumber(now time.Time) int {
	if now.Before(c.start) {
		return 1
	}
	return 1 + int(now.Sub(c.start)/c.dayLength)
}

// DayStart returns the wall-clock instant at which day begins.
//
// Precondition: day >= 1.
func (c *Calendar) DayStart(day int) time.Time {
	if day < 1 {
		day = 1
	}
	return c.start.Add(time.Duration(day-1) * c.dayLength)
}

// Ticker polls a Calendar and delivers the day number to subscribers whenever it changes.
type Ticker struct {
	cal          *Calendar
	pollInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	day         int
	subscribers map[chan<- int]struct{}
}

// NewTicker creates a stopped Ticker.
//
// Precondition: cal must be non-nil; pollInterval > 0.
// Postcondition: Returns a Ticker whose current day is cal.DayNumber(now()).
func NewTicker(cal *Calendar, pollInterval time.Duration, now func() time.Time) *Ticker {
	if now == nil {
		now = time.Now
	}
	return &Ticker{
		cal:          cal,
		pollInterval: pollInterval,
		now:          now,
		day:          cal.DayNumber(now()),
		subscribers:  make(map[chan<- int]struct{}),
	}
}

// CurrentDay returns the last observed day number.
func (t *Ticker) CurrentDay() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.day
}

// Subscribe registers ch to receive the new day number on each rollover.
// If ch is full, the notification is dropped for that subscriber.
//
// Precondition: ch must not be nil.
func (t *Ticker) Subscribe(ch chan<- int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the subscriber list.
func (t *Ticker) Unsubscribe(ch chan<- int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, ch)
}

// Poll checks the calendar once and notifies subscribers if the day changed.
//
// Postcondition: Returns true iff a rollover was observed.
func (t *Ticker) Poll() bool {
	d := t.cal.DayNumber(t.now())
	t.mu.Lock()
	if d == t.day {
		t.mu.Unlock()
		return false
	}
	t.day = d
	subs := make([]chan<- int, 0, len(t.subscribers))
	for ch := range t.subscribers {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- d:
		default:
		}
	}
	return true
}

// Start launches the polling goroutine and returns a stop function.
// Calling stop() is idempotent.
func (t *Ticker) Start() (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Poll()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}
