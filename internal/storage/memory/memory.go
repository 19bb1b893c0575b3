// Package memory provides in-process stores for shared targets, contributions,
// and players. All stores are safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// TargetStore is an in-memory target.Store with version compare-and-swap.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]*target.SharedTarget
}

// NewTargetStore creates an empty TargetStore.
func NewTargetStore() *TargetStore {
	return &TargetStore{targets: make(map[string]*target.SharedTarget)}
}

// Get returns a copy of the target with id.
//
// Postcondition: Returns target.ErrNotFound when absent.
func (s *TargetStore) Get(_ context.Context, id string) (*target.SharedTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, target.ErrNotFound
	}
	return t.Clone(), nil
}

// Create inserts t with Version 1.
//
// Precondition: t.ID must be non-empty and unused.
func (s *TargetStore) Create(_ context.Context, t *target.SharedTarget) error {
	if t.ID == "" {
		return fmt.Errorf("memory.TargetStore.Create: id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[t.ID]; exists {
		return fmt.Errorf("memory.TargetStore.Create: target %q already exists", t.ID)
	}
	t.Version = 1
	s.targets[t.ID] = t.Clone()
	return nil
}

// Update writes t when its Version matches the stored one.
//
// Postcondition: On success t.Version is incremented.
func (s *TargetStore) Update(_ context.Context, t *target.SharedTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.targets[t.ID]
	if !ok {
		return target.ErrNotFound
	}
	if cur.Version != t.Version {
		return target.ErrVersionConflict
	}
	t.Version++
	s.targets[t.ID] = t.Clone()
	return nil
}

// List returns copies of matching targets ordered by CreatedAt then ID.
func (s *TargetStore) List(_ context.Context, f target.ListFilter) ([]*target.SharedTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*target.SharedTarget, 0, len(s.targets))
	for _, t := range s.targets {
		if f.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type contribKey struct{ target, participant string }

// LedgerStore is an in-memory ledger.Store.
type LedgerStore struct {
	mu      sync.Mutex
	records map[contribKey]*ledger.Contribution
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{records: make(map[contribKey]*ledger.Contribution)}
}

func (s *LedgerStore) record(targetID, participantID string) *ledger.Contribution {
	k := contribKey{targetID, participantID}
	c, ok := s.records[k]
	if !ok {
		c = &ledger.Contribution{TargetID: targetID, ParticipantID: participantID}
		s.records[k] = c
	}
	return c
}

// AddContribution upserts and accumulates damage.
func (s *LedgerStore) AddContribution(_ context.Context, targetID, participantID string, damage int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.record(targetID, participantID)
	c.Damage += damage
	c.LastEngagedAt = at
	return nil
}

// Contributions returns copies of every record for targetID.
func (s *LedgerStore) Contributions(_ context.Context, targetID string) ([]ledger.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Contribution
	for k, c := range s.records {
		if k.target == targetID {
			cp := *c
			if c.LockoutUntil != nil {
				v := *c.LockoutUntil
				cp.LockoutUntil = &v
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

// SetLockout stores the participant's lockout expiry.
func (s *LedgerStore) SetLockout(_ context.Context, targetID, participantID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.record(targetID, participantID)
	c.LockoutUntil = &until
	return nil
}

// Lockout returns the participant's lockout expiry or nil.
func (s *LedgerStore) Lockout(_ context.Context, targetID, participantID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[contribKey{targetID, participantID}]
	if !ok || c.LockoutUntil == nil {
		return nil, nil
	}
	v := *c.LockoutUntil
	return &v, nil
}
