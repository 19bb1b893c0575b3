package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
)

// LedgerRepository is a ledger.Store over PostgreSQL.
type LedgerRepository struct {
	db *pgxpool.Pool
}

// NewLedgerRepository creates a LedgerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AddContribution upserts (targetID, participantID) and adds damage atomically.
//
// Precondition: targetID must reference an existing target; damage > 0.
func (r *LedgerRepository) AddContribution(ctx context.Context, targetID, participantID string, damage int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contributions (target_id, participant_id, damage, last_engaged_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (target_id, participant_id) DO UPDATE SET
			damage = contributions.damage + EXCLUDED.damage,
			last_engaged_at = EXCLUDED.last_engaged_at`,
		targetID, participantID, damage, at,
	)
	if err != nil {
		return fmt.Errorf("adding contribution: %w", err)
	}
	return nil
}

// Contributions returns every record for targetID.
func (r *LedgerRepository) Contributions(ctx context.Context, targetID string) ([]ledger.Contribution, error) {
	rows, err := r.db.Query(ctx, `
		SELECT participant_id, damage, last_engaged_at, lockout_until
		FROM contributions WHERE target_id = $1`, targetID)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Contribution
	for rows.Next() {
		c := ledger.Contribution{TargetID: targetID}
		if err := rows.Scan(&c.ParticipantID, &c.Damage, &c.LastEngagedAt, &c.LockoutUntil); err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	return out, nil
}

// SetLockout stores until as the participant's lockout expiry.
func (r *LedgerRepository) SetLockout(ctx context.Context, targetID, participantID string, until time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contributions (target_id, participant_id, lockout_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (target_id, participant_id) DO UPDATE SET
			lockout_until = EXCLUDED.lockout_until`,
		targetID, participantID, until,
	)
	if err != nil {
		return fmt.Errorf("setting lockout: %w", err)
	}
	return nil
}

// Lockout returns the participant's lockout expiry, or nil when none is recorded.
func (r *LedgerRepository) Lockout(ctx context.Context, targetID, participantID string) (*time.Time, error) {
	var until *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT lockout_until FROM contributions
		WHERE target_id = $1 AND participant_id = $2`, targetID, participantID).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockout: %w", err)
	}
	return until, nil
}
