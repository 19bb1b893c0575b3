// Package ledger records cumulative per-participant damage against shared targets.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Contribution is one participant's cumulative damage against a target.
type Contribution struct {
	TargetID      string
	ParticipantID string
	Damage        int64
	LastEngagedAt time.Time
	LockoutUntil  *time.Time
}

// Store persists contribution records.
type Store interface {
	// AddContribution upserts (targetID, participantID) and adds damage to the total.
	//
	// Precondition: damage > 0.
	AddContribution(ctx context.Context, targetID, participantID string, damage int64, at time.Time) error
	// Contributions returns every record for targetID in any order.
	Contributions(ctx context.Context, targetID string) ([]Contribution, error)
	// SetLockout stores until as the participant's lockout expiry, creating the record if needed.
	SetLockout(ctx context.Context, targetID, participantID string, until time.Time) error
	// Lockout returns the participant's lockout expiry, or nil when none is recorded.
	Lockout(ctx context.Context, targetID, participantID string) (*time.Time, error)
}

// Ledger is the contribution bookkeeping used by the engine.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// New creates a Ledger over store.
//
// Precondition: store and logger must be non-nil.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Record adds damage to the participant's running total.
//
// Postcondition: damage <= 0 is a no-op; negative values are logged and ignored.
func (l *Ledger) Record(ctx context.Context, targetID, participantID string, damage int, at time.Time) error {
	if damage < 0 {
		l.logger.Warn("ignoring negative contribution",
			zap.String("target", targetID),
			zap.String("participant", participantID),
			zap.Int("damage", damage),
		)
		return nil
	}
	if damage == 0 {
		return nil
	}
	if err := l.store.AddContribution(ctx, targetID, participantID, int64(damage), at); err != nil {
		return fmt.Errorf("recording contribution for %s on %s: %w", participantID, targetID, err)
	}
	return nil
}

// Totals returns every contribution for targetID, descending by damage with
// ties broken by participant ID.
func (l *Ledger) Totals(ctx context.Context, targetID string) ([]Contribution, error) {
	cs, err := l.store.Contributions(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("loading contributions for %s: %w", targetID, err)
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Damage != cs[j].Damage {
			return cs[i].Damage > cs[j].Damage
		}
		return cs[i].ParticipantID < cs[j].ParticipantID
	})
	return cs, nil
}

// Contributors counts participants with damage > 0 on targetID.
func (l *Ledger) Contributors(ctx context.Context, targetID string) (int, error) {
	cs, err := l.store.Contributions(ctx, targetID)
	if err != nil {
		return 0, fmt.Errorf("counting contributors for %s: %w", targetID, err)
	}
	n := 0
	for _, c := range cs {
		if c.Damage > 0 {
			n++
		}
	}
	return n, nil
}

// Sum returns the total damage recorded against targetID.
func (l *Ledger) Sum(ctx context.Context, targetID string) (int64, error) {
	cs, err := l.store.Contributions(ctx, targetID)
	if err != nil {
		return 0, fmt.Errorf("summing contributions for %s: %w", targetID, err)
	}
	var total int64
	for _, c := range cs {
		total += c.Damage
	}
	return total, nil
}

// Lock prevents participantID from re-engaging targetID until until.
func (l *Ledger) Lock(ctx context.Context, targetID, participantID string, until time.Time) error {
	if err := l.store.SetLockout(ctx, targetID, participantID, until); err != nil {
		return fmt.Errorf("locking out %s on %s: %w", participantID, targetID, err)
	}
	return nil
}

// LockedUntil reports whether participantID is locked out of targetID at now,
// and until when.
func (l *Ledger) LockedUntil(ctx context.Context, targetID, participantID string, now time.Time) (time.Time, bool, error) {
	until, err := l.store.Lockout(ctx, targetID, participantID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading lockout for %s on %s: %w", participantID, targetID, err)
	}
	if until == nil || !now.Before(*until) {
		return time.Time{}, false, nil
	}
	return *until, true, nil
}
