package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// TargetStore is a target.Store over SQLite.
type TargetStore struct {
	db *sql.DB
}

const targetColumns = `id, kind, name, hp, hp_max, pow, def, spd, xp_reward, gold_reward,
	mechanics, phase, regen_rate, regen_interval_hours, last_regen_at, last_burst_at,
	last_minion_spawn_at, floor, room_id, active, completed, completed_at,
	halfway_announced, split_spawned, parent_id, pooled, available_from_day, version, created_at`

func joinMechanics(ms []target.Mechanic) string {
	return strings.Join(target.MechanicNames(ms), ",")
}

func splitMechanics(s string) []target.Mechanic {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]target.Mechanic, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, target.Mechanic(p))
		}
	}
	return out
}

func scanTarget(row rowScanner) (*target.SharedTarget, error) {
	var (
		t                         target.SharedTarget
		kind, mechanics           string
		regen, burst, spawn, done sql.NullInt64
		created                   int64
	)
	err := row.Scan(
		&t.ID, &kind, &t.Name, &t.HP, &t.HPMax, &t.Pow, &t.Def, &t.Spd, &t.XPReward, &t.GoldReward,
		&mechanics, &t.Phase, &t.RegenRate, &t.RegenIntervalHours, &regen, &burst,
		&spawn, &t.Floor, &t.RoomID, &t.Active, &t.Completed, &done,
		&t.HalfwayAnnounced, &t.SplitSpawned, &t.ParentID, &t.Pooled, &t.AvailableFromDay, &t.Version, &created,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = target.Kind(kind)
	t.Mechanics = splitMechanics(mechanics)
	t.LastRegenAt = timePtr(regen)
	t.LastBurstAt = timePtr(burst)
	t.LastMinionSpawnAt = timePtr(spawn)
	t.CompletedAt = timePtr(done)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

// Get returns the target with id.
//
// Postcondition: Returns target.ErrNotFound when absent.
func (s *TargetStore) Get(ctx context.Context, id string) (*target.SharedTarget, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM shared_targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, target.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", id, err)
	}
	return t, nil
}

// Create inserts t with Version 1.
//
// Precondition: t.ID must be non-empty and unused.
// Postcondition: t.Version == 1 on success.
func (s *TargetStore) Create(ctx context.Context, t *target.SharedTarget) error {
	if t.ID == "" {
		return fmt.Errorf("sqlite.TargetStore.Create: id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO shared_targets (`+targetColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, string(t.Kind), t.Name, t.HP, t.HPMax, t.Pow, t.Def, t.Spd, t.XPReward, t.GoldReward,
		joinMechanics(t.Mechanics), t.Phase, t.RegenRate, t.RegenIntervalHours,
		nullMillis(t.LastRegenAt), nullMillis(t.LastBurstAt), nullMillis(t.LastMinionSpawnAt),
		t.Floor, t.RoomID, t.Active, t.Completed, nullMillis(t.CompletedAt),
		t.HalfwayAnnounced, t.SplitSpawned, t.ParentID, t.Pooled, t.AvailableFromDay, 1, toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting target %s: %w", t.ID, err)
	}
	t.Version = 1
	return nil
}

// Update writes t when the stored version equals t.Version.
//
// Postcondition: On success t.Version is incremented; ErrVersionConflict or
// ErrNotFound otherwise.
func (s *TargetStore) Update(ctx context.Context, t *target.SharedTarget) error {
	res, err := s.db.ExecContext(ctx, `UPDATE shared_targets SET
			kind = ?, name = ?, hp = ?, hp_max = ?, pow = ?, def = ?, spd = ?,
			xp_reward = ?, gold_reward = ?, mechanics = ?, phase = ?,
			regen_rate = ?, regen_interval_hours = ?,
			last_regen_at = ?, last_burst_at = ?, last_minion_spawn_at = ?,
			floor = ?, room_id = ?, active = ?, completed = ?, completed_at = ?,
			halfway_announced = ?, split_spawned = ?, parent_id = ?, pooled = ?,
			available_from_day = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(t.Kind), t.Name, t.HP, t.HPMax, t.Pow, t.Def, t.Spd,
		t.XPReward, t.GoldReward, joinMechanics(t.Mechanics), t.Phase,
		t.RegenRate, t.RegenIntervalHours,
		nullMillis(t.LastRegenAt), nullMillis(t.LastBurstAt), nullMillis(t.LastMinionSpawnAt),
		t.Floor, t.RoomID, t.Active, t.Completed, nullMillis(t.CompletedAt),
		t.HalfwayAnnounced, t.SplitSpawned, t.ParentID, t.Pooled,
		t.AvailableFromDay,
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("updating target %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating target %s: %w", t.ID, err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM shared_targets WHERE id = ?`, t.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return target.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking target %s: %w", t.ID, err)
		}
		return target.ErrVersionConflict
	}
	t.Version++
	return nil
}

// List returns targets matching f ordered by CreatedAt then ID.
func (s *TargetStore) List(ctx context.Context, f target.ListFilter) ([]*target.SharedTarget, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *f.Completed)
	}
	q := `SELECT ` + targetColumns + ` FROM shared_targets`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
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
