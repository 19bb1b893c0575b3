// Package target defines the shared-target entity: one persistent creature with a
// server-wide HP pool damaged by many participants.
package target

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a shared target.
type Kind string

const (
	KindBounty          Kind = "bounty"
	KindRaidBoss        Kind = "raid_boss"
	KindBreachEmergence Kind = "breach_emergence"
	KindFloorBoss       Kind = "floor_boss"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{KindBounty, KindRaidBoss, KindBreachEmergence, KindFloorBoss}

// ParseKind validates s as a Kind.
//
// Postcondition: Returns the Kind or a non-nil error for unknown values.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

// Rewarded reports whether completion of this kind grants contributor rewards.
func (k Kind) Rewarded() bool {
	return k == KindBounty || k == KindRaidBoss
}

var (
	// ErrNotFound is returned when a target does not exist.
	ErrNotFound = errors.New("target not found")
	// ErrVersionConflict is returned when an update loses an optimistic version race.
	ErrVersionConflict = errors.New("target version conflict")
)

// SharedTarget is one physical creature with a pooled HP value.
//
// Invariant: 0 <= HP <= HPMax; Phase >= 1; Completed never reverts to false.
type SharedTarget struct {
	ID         string
	Kind       Kind
	Name       string
	HP         int
	HPMax      int
	Pow        int
	Def        int
	Spd        int
	XPReward   int
	GoldReward int
	Mechanics  []Mechanic
	Phase      int

	RegenRate          float64
	RegenIntervalHours float64
	LastRegenAt        *time.Time
	LastBurstAt        *time.Time
	LastMinionSpawnAt  *time.Time

	Floor  int
	RoomID string

	Active           bool
	Completed        bool
	CompletedAt      *time.Time
	HalfwayAnnounced bool
	SplitSpawned     bool
	// ParentID links a split child to the target it split from.
	ParentID         string
	Pooled           bool
	AvailableFromDay int

	Version   int64
	CreatedAt time.Time
}

// Ratio returns HP/HPMax, or 0 when HPMax is not positive.
func (t *SharedTarget) Ratio() float64 {
	if t.HPMax <= 0 {
		return 0
	}
	return float64(t.HP) / float64(t.HPMax)
}

// Dead reports whether HP has reached zero.
func (t *SharedTarget) Dead() bool { return t.HP <= 0 }

// Has reports whether m is in the target's mechanic set.
func (t *SharedTarget) Has(m Mechanic) bool {
	for _, have := range t.Mechanics {
		if have == m {
			return true
		}
	}
	return false
}

// ClampHP forces HP into [0, HPMax].
//
// Postcondition: 0 <= t.HP <= t.HPMax.
func (t *SharedTarget) ClampHP() {
	if t.HP < 0 {
		t.HP = 0
	}
	if t.HP > t.HPMax {
		t.HP = t.HPMax
	}
}

// Clone returns a deep copy of t.
func (t *SharedTarget) Clone() *SharedTarget {
	c := *t
	c.Mechanics = append([]Mechanic(nil), t.Mechanics...)
	c.LastRegenAt = cloneTime(t.LastRegenAt)
	c.LastBurstAt = cloneTime(t.LastBurstAt)
	c.LastMinionSpawnAt = cloneTime(t.LastMinionSpawnAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ListFilter narrows Store.List results. Zero values match everything.
type ListFilter struct {
	Kind      Kind
	Active    *bool
	Completed *bool
}

// Matches reports whether t satisfies the filter.
func (f ListFilter) Matches(t *SharedTarget) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Active != nil && t.Active != *f.Active {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	return true
}

// Store persists shared targets.
type Store interface {
	// Get returns the target with id or ErrNotFound.
	Get(ctx context.Context, id string) (*SharedTarget, error)
	// Create inserts t with Version 1.
	//
	// Postcondition: t.Version == 1 on success.
	Create(ctx context.Context, t *SharedTarget) error
	// Update writes t when the stored version equals t.Version, then increments t.Version.
	//
	// Postcondition: Returns ErrVersionConflict when the stored version differs,
	// and ErrNotFound when no row exists.
	Update(ctx context.Context, t *SharedTarget) error
	// List returns targets matching f ordered by CreatedAt then ID.
	List(ctx context.Context, f ListFilter) ([]*SharedTarget, error)
}
