package target

import "strings"

// Mechanic is a named per-round combat modifier.
type Mechanic string

// Standard mechanics carried by bounties and floor bosses.
const (
	Armored            Mechanic = "armored"
	Enraged            Mechanic = "enraged"
	Stalwart           Mechanic = "stalwart"
	Warded             Mechanic = "warded"
	Phasing            Mechanic = "phasing"
	Draining           Mechanic = "draining"
	Splitting          Mechanic = "splitting"
	RotatingResistance Mechanic = "rotating_resistance"
	Retaliator         Mechanic = "retaliator"
	Summoner           Mechanic = "summoner"
	Regenerator        Mechanic = "regenerator"
	Cursed             Mechanic = "cursed"
)

// Raid mechanics, scaled by phase.
const (
	WindupStrike    Mechanic = "windup_strike"
	FlatDamageBoost Mechanic = "flat_damage_boost"
	Retribution     Mechanic = "retribution"
	AuraDamage      Mechanic = "aura_damage"
	ArmorPhase      Mechanic = "armor_phase"
	BossFlees       Mechanic = "boss_flees"
	NoEscape        Mechanic = "no_escape"
	Lockout         Mechanic = "lockout"
	EnrageTimer     Mechanic = "enrage_timer"
	ExtraRegen      Mechanic = "extra_regen"
	RegenBurst      Mechanic = "regen_burst"
)

var knownMechanics = map[Mechanic]bool{
	Armored: true, Enraged: true, Stalwart: true, Warded: true, Phasing: true,
	Draining: true, Splitting: true, RotatingResistance: true, Retaliator: true,
	Summoner: true, Regenerator: true, Cursed: true,
	WindupStrike: true, FlatDamageBoost: true, Retribution: true, AuraDamage: true,
	ArmorPhase: true, BossFlees: true, NoEscape: true, Lockout: true,
	EnrageTimer: true, ExtraRegen: true, RegenBurst: true,
}

// Known reports whether m is a recognised mechanic.
func (m Mechanic) Known() bool { return knownMechanics[m] }

// ParseMechanics converts raw identifiers into the closed mechanic set,
// preserving declaration order and dropping duplicates.
//
// Postcondition: known contains only recognised mechanics; unknown holds every
// unrecognised non-empty identifier in input order.
func ParseMechanics(raw []string) (known []Mechanic, unknown []string) {
	seen := make(map[Mechanic]bool, len(raw))
	for _, r := range raw {
		name := strings.ToLower(strings.TrimSpace(r))
		if name == "" {
			continue
		}
		m := Mechanic(name)
		if !m.Known() {
			unknown = append(unknown, r)
			continue
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		known = append(known, m)
	}
	return known, unknown
}

// MechanicNames returns the string form of ms.
func MechanicNames(ms []Mechanic) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}
