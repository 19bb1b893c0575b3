package minion

import "github.com/zvx-echo6/mmud-sub000/internal/game/combat"

// Instance is a live minion occupying a room.
type Instance struct {
	// ID uniquely identifies this runtime instance.
	ID string
	// TemplateID is the source template's ID.
	TemplateID string
	Name       string
	RoomID     string
	// OwnerID is the shared target this minion guards.
	OwnerID   string
	CurrentHP int
	MaxHP     int
	Pow       int
	Def       int
	Spd       int
	XPReward  int
}

// NewInstance creates a live minion from a template, placed in roomID.
//
// Precondition: id must be non-empty; tmpl must be non-nil; roomID must be non-empty.
// Postcondition: CurrentHP equals tmpl.MaxHP.
func NewInstance(id string, tmpl *Template, roomID, ownerID string) *Instance {
	return &Instance{
		ID:         id,
		TemplateID: tmpl.ID,
		Name:       tmpl.Name,
		RoomID:     roomID,
		OwnerID:    ownerID,
		CurrentHP:  tmpl.MaxHP,
		MaxHP:      tmpl.MaxHP,
		Pow:        tmpl.Pow,
		Def:        tmpl.Def,
		Spd:        tmpl.Spd,
		XPReward:   tmpl.XPReward,
	}
}

// IsDead reports whether the instance has zero or fewer hit points.
func (i *Instance) IsDead() bool {
	return i.CurrentHP <= 0
}

// Combatant returns the instance as a monster-side combatant for round resolution.
func (i *Instance) Combatant() *combat.Combatant {
	return &combat.Combatant{
		ID:        i.ID,
		Kind:      combat.KindMonster,
		Name:      i.Name,
		Pow:       i.Pow,
		Def:       i.Def,
		Spd:       i.Spd,
		MaxHP:     i.MaxHP,
		CurrentHP: i.CurrentHP,
	}
}

// HealthDescription returns a visible health state string suitable for examine output.
//
// Postcondition: Returns a non-empty string.
func (i *Instance) HealthDescription() string {
	if i.CurrentHP <= 0 {
		return "dead"
	}
	pct := float64(i.CurrentHP) / float64(i.MaxHP)
	switch {
	case pct >= 1.0:
		return "unharmed"
	case pct >= 0.60:
		return "lightly wounded"
	case pct >= 0.20:
		return "heavily wounded"
	default:
		return "critically wounded"
	}
}
