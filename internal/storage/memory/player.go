package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
)

// PlayerRepository is an in-memory player.Repository.
type PlayerRepository struct {
	mu      sync.RWMutex
	players map[string]*player.Character
}

// NewPlayerRepository creates an empty PlayerRepository.
func NewPlayerRepository() *PlayerRepository {
	return &PlayerRepository{players: make(map[string]*player.Character)}
}

// Put inserts or replaces a character.
//
// Precondition: c.ID must be non-empty.
func (r *PlayerRepository) Put(c *player.Character) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.players[c.ID] = &cp
}

// Upsert inserts c or refreshes its stats, keeping accumulated XP and gold.
func (r *PlayerRepository) Upsert(_ context.Context, c *player.Character) error {
	if c.ID == "" {
		return fmt.Errorf("memory.PlayerRepository.Upsert: id must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	if cur, ok := r.players[c.ID]; ok {
		cp.XP, cp.Gold, cp.CreatedAt = cur.XP, cur.Gold, cur.CreatedAt
	}
	r.players[c.ID] = &cp
	return nil
}

// Get returns a copy of the character with id.
func (r *PlayerRepository) Get(_ context.Context, id string) (*player.Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.players[id]
	if !ok {
		return nil, player.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Stats returns the player's engine view.
func (r *PlayerRepository) Stats(ctx context.Context, id string) (player.Stats, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return player.Stats{}, err
	}
	return c.Stats(), nil
}

// AwardXP adds amount experience.
func (r *PlayerRepository) AwardXP(_ context.Context, id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("memory.PlayerRepository.AwardXP: amount must be >= 0, got %d", amount)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.players[id]
	if !ok {
		return player.ErrNotFound
	}
	c.XP += amount
	return nil
}

// AwardGold adds amount gold.
func (r *PlayerRepository) AwardGold(_ context.Context, id string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("memory.PlayerRepository.AwardGold: amount must be >= 0, got %d", amount)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.players[id]
	if !ok {
		return player.ErrNotFound
	}
	c.Gold += amount
	return nil
}
