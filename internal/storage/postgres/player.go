package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
)

// PlayerRepository is a player.Registry over PostgreSQL.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Get returns the full character record for id.
//
// Postcondition: Returns player.ErrNotFound when absent.
func (r *PlayerRepository) Get(ctx context.Context, id string) (*player.Character, error) {
	var c player.Character
	err := r.db.QueryRow(ctx, `
		SELECT id, name, level, xp, gold, pow, def, spd, hp, hp_max, floor, created_at, updated_at
		FROM characters WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Level, &c.XP, &c.Gold, &c.Pow, &c.Def, &c.Spd,
		&c.HP, &c.HPMax, &c.Floor, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, player.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading character %s: %w", id, err)
	}
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
		return fmt.Errorf("postgres.PlayerRepository.Upsert: id must not be empty")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO characters (id, name, level, xp, gold, pow, def, spd, hp, hp_max, floor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, level = EXCLUDED.level,
			pow = EXCLUDED.pow, def = EXCLUDED.def, spd = EXCLUDED.spd,
			hp = EXCLUDED.hp, hp_max = EXCLUDED.hp_max, floor = EXCLUDED.floor,
			updated_at = NOW()`,
		c.ID, c.Name, c.Level, c.XP, c.Gold, c.Pow, c.Def, c.Spd, c.HP, c.HPMax, c.Floor,
	)
	if err != nil {
		return fmt.Errorf("upserting character %s: %w", c.ID, err)
	}
	return nil
}

// AwardXP adds amount experience to id.
func (r *PlayerRepository) AwardXP(ctx context.Context, id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("award xp: amount must be >= 0, got %d", amount)
	}
	return r.exec(ctx, `UPDATE characters SET xp = xp + $2, updated_at = NOW() WHERE id = $1`, id, amount)
}

// AwardGold adds amount gold to id.
func (r *PlayerRepository) AwardGold(ctx context.Context, id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("award gold: amount must be >= 0, got %d", amount)
	}
	return r.exec(ctx, `UPDATE characters SET gold = gold + $2, updated_at = NOW() WHERE id = $1`, id, amount)
}

func (r *PlayerRepository) exec(ctx context.Context, q, id string, amount int64) error {
	tag, err := r.db.Exec(ctx, q, id, amount)
	if err != nil {
		return fmt.Errorf("awarding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return player.ErrNotFound
	}
	return nil
}
