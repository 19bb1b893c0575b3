package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// ErrTargetExists is returned when creating a target whose ID is already used.
var ErrTargetExists = errors.New("target already exists")

// TargetRepository is a target.Store over PostgreSQL.
type TargetRepository struct {
	db *pgxpool.Pool
}

// NewTargetRepository creates a TargetRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewTargetRepository(db *pgxpool.Pool) *TargetRepository {
	return &TargetRepository{db: db}
}

const targetColumns = `id, kind, name, hp, hp_max, pow, def, spd, xp_reward, gold_reward,
	mechanics, phase, regen_rate, regen_interval_hours, last_regen_at, last_burst_at,
	last_minion_spawn_at, floor, room_id, active, completed, completed_at,
	halfway_announced, split_spawned, parent_id, pooled, available_from_day, version, created_at`

func scanTarget(row pgx.Row) (*target.SharedTarget, error) {
	var (
		t         target.SharedTarget
		kind      string
		mechanics []string
	)
	err := row.Scan(
		&t.ID, &kind, &t.Name, &t.HP, &t.HPMax, &t.Pow, &t.Def, &t.Spd, &t.XPReward, &t.GoldReward,
		&mechanics, &t.Phase, &t.RegenRate, &t.RegenIntervalHours, &t.LastRegenAt, &t.LastBurstAt,
		&t.LastMinionSpawnAt, &t.Floor, &t.RoomID, &t.Active, &t.Completed, &t.CompletedAt,
		&t.HalfwayAnnounced, &t.SplitSpawned, &t.ParentID, &t.Pooled, &t.AvailableFromDay, &t.Version, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = target.Kind(kind)
	if len(mechanics) > 0 {
		t.Mechanics = make([]target.Mechanic, len(mechanics))
		for i, m := range mechanics {
			t.Mechanics[i] = target.Mechanic(m)
		}
	}
	return &t, nil
}

// Get returns the target with id.
//
// Postcondition: Returns target.ErrNotFound when absent.
func (r *TargetRepository) Get(ctx context.Context, id string) (*target.SharedTarget, error) {
	t, err := scanTarget(r.db.QueryRow(ctx, `SELECT `+targetColumns+` FROM shared_targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, target.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", id, err)
	}
	return t, nil
}

// Create inserts t with Version 1.
//
// Precondition: t.ID must be non-empty.
// Postcondition: t.Version == 1 on success; ErrTargetExists on a duplicate ID.
func (r *TargetRepository) Create(ctx context.Context, t *target.SharedTarget) error {
	if t.ID == "" {
		return fmt.Errorf("postgres.TargetRepository.Create: id must not be empty")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO shared_targets (`+targetColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,1,$28)`,
		t.ID, string(t.Kind), t.Name, t.HP, t.HPMax, t.Pow, t.Def, t.Spd, t.XPReward, t.GoldReward,
		target.MechanicNames(t.Mechanics), t.Phase, t.RegenRate, t.RegenIntervalHours,
		t.LastRegenAt, t.LastBurstAt, t.LastMinionSpawnAt,
		t.Floor, t.RoomID, t.Active, t.Completed, t.CompletedAt,
		t.HalfwayAnnounced, t.SplitSpawned, t.ParentID, t.Pooled, t.AvailableFromDay, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrTargetExists
		}
		return fmt.Errorf("inserting target %s: %w", t.ID, err)
	}
	t.Version = 1
	return nil
}

// Update writes t when the stored version equals t.Version.
//
// Postcondition: On success t.Version is incremented; ErrVersionConflict or
// ErrNotFound otherwise.
func (r *TargetRepository) Update(ctx context.Context, t *target.SharedTarget) error {
	tag, err := r.db.Exec(ctx, `UPDATE shared_targets SET
			kind = $3, name = $4, hp = $5, hp_max = $6, pow = $7, def = $8, spd = $9,
			xp_reward = $10, gold_reward = $11, mechanics = $12, phase = $13,
			regen_rate = $14, regen_interval_hours = $15,
			last_regen_at = $16, last_burst_at = $17, last_minion_spawn_at = $18,
			floor = $19, room_id = $20, active = $21, completed = $22, completed_at = $23,
			halfway_announced = $24, split_spawned = $25, parent_id = $26, pooled = $27,
			available_from_day = $28, version = version + 1
		WHERE id = $1 AND version = $2`,
		t.ID, t.Version,
		string(t.Kind), t.Name, t.HP, t.HPMax, t.Pow, t.Def, t.Spd,
		t.XPReward, t.GoldReward, target.MechanicNames(t.Mechanics), t.Phase,
		t.RegenRate, t.RegenIntervalHours,
		t.LastRegenAt, t.LastBurstAt, t.LastMinionSpawnAt,
		t.Floor, t.RoomID, t.Active, t.Completed, t.CompletedAt,
		t.HalfwayAnnounced, t.SplitSpawned, t.ParentID, t.Pooled,
		t.AvailableFromDay,
	)
	if err != nil {
		return fmt.Errorf("updating target %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shared_targets WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking target %s: %w", t.ID, err)
		}
		if !exists {
			return target.ErrNotFound
		}
		return target.ErrVersionConflict
	}
	t.Version++
	return nil
}

// List returns targets matching f ordered by CreatedAt then ID.
func (r *TargetRepository) List(ctx context.Context, f target.ListFilter) ([]*target.SharedTarget, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if f.Completed != nil {
		args = append(args, *f.Completed)
		where = append(where, fmt.Sprintf("completed = $%d", len(args)))
	}
	q := `SELECT ` + targetColumns + ` FROM shared_targets`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	defer rows.Close()

	var out []*target.SharedTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	return out, nil
}
