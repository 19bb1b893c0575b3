// Package combat implements the stateless combat math used against shared targets:
// damage, initiative, flight, and single-round resolution.
package combat

// Kind distinguishes player combatants from monster combatants.
type Kind int

const (
	KindPlayer Kind = iota
	KindMonster
)

// Combatant is one side of a combat exchange.
type Combatant struct {
	ID        string
	Kind      Kind
	Name      string
	Pow       int
	Def       int
	Spd       int
	MaxHP     int
	CurrentHP int
}

// IsPlayer reports whether this combatant is a player character.
// Postcondition: Returns true iff Kind == KindPlayer.
func (c *Combatant) IsPlayer() bool { return c.Kind == KindPlayer }

// IsDead reports whether CurrentHP has reached zero.
func (c *Combatant) IsDead() bool { return c.CurrentHP <= 0 }

// ApplyDamage reduces CurrentHP by amount, flooring at zero.
// Precondition: amount must be >= 0.
// Postcondition: CurrentHP >= 0.
func (c *Combatant) ApplyDamage(amount int) {
	c.CurrentHP -= amount
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
}

// Source is the subset of dice.Source used by combat math.
// Using a local interface avoids importing dice from leaf code.
type Source interface {
	Intn(n int) int
}

// DefaultFleeBase is the flee probability for a player with 3 SPD.
const DefaultFleeBase = 0.6

// BaseDamage returns the pre-variance damage: max(1, pow - def/3).
//
// Postcondition: Returns >= 1.
func BaseDamage(attackerPow, defenderDef int) int {
	base := attackerPow - defenderDef/3
	if base < 1 {
		return 1
	}
	return base
}

// CalcDamage computes one attack's damage with a uniform 80-120% variance.
//
// Precondition: src must be non-nil.
// Postcondition: Returns >= 1.
func CalcDamage(attackerPow, defenderDef int, src Source) int {
	base := BaseDamage(attackerPow, defenderDef)
	variance := 80 + src.Intn(41)
	dmg := base * variance / 100
	if dmg < 1 {
		return 1
	}
	return dmg
}
