// Package player defines the read-only player view consumed by the shared-target
// engine and the reward application contract.
package player

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a player record does not exist.
var ErrNotFound = errors.New("player not found")

// DefaultHPMax is assumed for recoil math when a player's stats cannot be loaded.
const DefaultHPMax = 50

// Stats is the snapshot of a player used by mechanics and reward math.
type Stats struct {
	ID    string
	Name  string
	Level int
	Pow   int
	Def   int
	Spd   int
	HP    int
	HPMax int
	Floor int
}

// HighestIsPow reports whether POW is at least as high as DEF and SPD.
// Ties resolve toward POW.
func (s Stats) HighestIsPow() bool {
	return s.Pow >= s.Def && s.Pow >= s.Spd
}

// Fallback returns placeholder stats for id when the real record is unavailable.
//
// Postcondition: HPMax == DefaultHPMax.
func Fallback(id string) Stats {
	return Stats{ID: id, HPMax: DefaultHPMax, HP: DefaultHPMax, Level: 1}
}

// Character is a player's persistent record as held by the player subsystem.
type Character struct {
	ID    string
	Name  string
	Level int
	XP    int64
	Gold  int64
	Pow   int
	Def   int
	Spd   int
	HP    int
	HPMax int
	Floor int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats projects the character onto the engine's read-only view.
func (c *Character) Stats() Stats {
	return Stats{
		ID: c.ID, Name: c.Name, Level: c.Level,
		Pow: c.Pow, Def: c.Def, Spd: c.Spd,
		HP: c.HP, HPMax: c.HPMax, Floor: c.Floor,
	}
}

// Repository reads player stats and applies rewards. The engine never writes
// player records except through AwardXP and AwardGold.
type Repository interface {
	// Stats returns the current stats for id or ErrNotFound.
	Stats(ctx context.Context, id string) (Stats, error)
	// AwardXP adds amount experience to id.
	//
	// Precondition: amount >= 0.
	AwardXP(ctx context.Context, id string, amount int64) error
	// AwardGold adds amount gold to id.
	//
	// Precondition: amount >= 0.
	AwardGold(ctx context.Context, id string, amount int64) error
}

// Registry is a Repository that can also create and read full character
// records. Storage backends implement it; the engine only needs Repository.
type Registry interface {
	Repository
	// Get returns the full character record for id or ErrNotFound.
	Get(ctx context.Context, id string) (*Character, error)
	// Upsert inserts c or replaces every field except XP, Gold and CreatedAt.
	//
	// Precondition: c.ID must be non-empty.
	Upsert(ctx context.Context, c *Character) error
}
