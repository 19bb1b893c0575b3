package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
)

// PlayerRepository is a player.Registry over SQLite.
type PlayerRepository struct {
	db *sql.DB
}

// Get returns the full character record for id.
//
// Postcondition: Returns player.ErrNotFound when absent.
func (r *PlayerRepository) Get(ctx context.Context, id string) (*player.Character, error) {
	var (
		c                player.Character
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, level, xp, gold, pow, def, spd, hp, hp_max, floor, created_at, updated_at
		FROM characters WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Level, &c.XP, &c.Gold, &c.Pow, &c.Def, &c.Spd, &c.HP, &c.HPMax, &c.Floor, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, player.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading character %s: %w", id, err)
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// Stats returns the engine view of id.
func (r *PlayerRepository) Stats(ctx context.Context, id string) (player.Stats, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return player.Stats{}, err
	}
	return c.Stats(), nil
}

// Upsert inserts c or refreshes its stats, keeping accumulated XP and gold.
//
// Precondition: c.ID must be non-empty.
func (r *PlayerRepository) Upsert(ctx context.Context, c *player.Character) error {
	if c.ID == "" {
		return fmt.Errorf("sqlite.PlayerRepository.Upsert: id must not be empty")
	}
	now := time.Now()
	created := c.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO characters (id, name, level, xp, gold, pow, def, spd, hp, hp_max, floor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, level = excluded.level,
			pow = excluded.pow, def = excluded.def, spd = excluded.spd,
			hp = excluded.hp, hp_max = excluded.hp_max, floor = excluded.floor,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Level, c.XP, c.Gold, c.Pow, c.Def, c.Spd, c.HP, c.HPMax, c.Floor,
		toMillis(created), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("upserting character %s: %w", c.ID, err)
	}
	return nil
}

// AwardXP adds amount experience to id.
func (r *PlayerRepository) AwardXP(ctx context.Context, id string, amount int64) error {
	return r.add(ctx, "xp", id, amount)
}

// AwardGold adds amount gold to id.
func (r *PlayerRepository) AwardGold(ctx context.Context, id string, amount int64) error {
	return r.add(ctx, "gold", id, amount)
}

// add increments column, which is always one of the fixed names above.
func (r *PlayerRepository) add(ctx context.Context, column, id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("award %s: amount must be >= 0, got %d", column, amount)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE characters SET `+column+` = `+column+` + ?, updated_at = ? WHERE id = ?`,
		amount, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("award %s to %s: %w", column, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("award %s to %s: %w", column, id, err)
	}
	if n == 0 {
		return player.ErrNotFound
	}
	return nil
}
