package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
)

// LedgerStore is a ledger.Store over SQLite.
type LedgerStore struct {
	db *sql.DB
}

// AddContribution upserts (targetID, participantID) and adds damage to the total.
//
// Precondition: targetID must reference an existing target; damage > 0.
func (s *LedgerStore) AddContribution(ctx context.Context, targetID, participantID string, damage int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contributions (target_id, participant_id, damage, last_engaged_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (target_id, participant_id) DO UPDATE SET
			damage = damage + excluded.damage,
			last_engaged_at = excluded.last_engaged_at`,
		targetID, participantID, damage, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("adding contribution: %w", err)
	}
	return nil
}

// Contributions returns every record for targetID.
func (s *LedgerStore) Contributions(ctx context.Context, targetID string) ([]ledger.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, damage, last_engaged_at, lockout_until
		FROM contributions WHERE target_id = ?`, targetID)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Contribution
	for rows.Next() {
		var (
			c       = ledger.Contribution{TargetID: targetID}
			engaged int64
			lockout sql.NullInt64
		)
		if err := rows.Scan(&c.ParticipantID, &c.Damage, &engaged, &lockout); err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		c.LastEngagedAt = fromMillis(engaged)
		c.LockoutUntil = timePtr(lockout)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	return out, nil
}

// SetLockout stores until as the participant's lockout expiry.
func (s *LedgerStore) SetLockout(ctx context.Context, targetID, participantID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contributions (target_id, participant_id, lockout_until)
		VALUES (?, ?, ?)
		ON CONFLICT (target_id, participant_id) DO UPDATE SET
			lockout_until = excluded.lockout_until`,
		targetID, participantID, toMillis(until),
	)
	if err != nil {
		return fmt.Errorf("setting lockout: %w", err)
	}
	return nil
}

// Lockout returns the participant's lockout expiry, or nil when none is recorded.
func (s *LedgerStore) Lockout(ctx context.Context, targetID, participantID string) (*time.Time, error) {
	var until sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT lockout_until FROM contributions
		WHERE target_id = ? AND participant_id = ?`, targetID, participantID).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockout: %w", err)
	}
	return timePtr(until), nil
}
