package combat

import "fmt"

// FleeResult holds the outcome of a flee attempt.
type FleeResult struct {
	Success     bool
	DamageTaken int
	PlayerHP    int
	Narrative   string
}

// FleeChance returns base + (spd-3)*0.05 clamped to [0.2, 0.95].
//
// Postcondition: 0.2 <= result <= 0.95.
func FleeChance(spd int, base float64) float64 {
	chance := base + float64(spd-3)*0.05
	if chance < 0.2 {
		return 0.2
	}
	if chance > 0.95 {
		return 0.95
	}
	return chance
}

// AttemptFlee rolls a flee attempt. On failure the monster lands a free hit
// that cannot drop the player below 1 HP.
//
// Precondition: player and monster must be non-nil; src must be non-nil.
// Postcondition: On failure player.CurrentHP >= 1 if it was >= 1 before.
func AttemptFlee(player, monster *Combatant, base float64, src Source) FleeResult {
	chance := FleeChance(player.Spd, base)
	if src.Intn(10000) < int(chance*10000) {
		return FleeResult{
			Success:   true,
			PlayerHP:  player.CurrentHP,
			Narrative: fmt.Sprintf("You escape from %s!", monster.Name),
		}
	}

	dmg := CalcDamage(monster.Pow, player.Def, src)
	hp := player.CurrentHP - dmg
	if hp < 1 {
		hp = 1
	}
	player.CurrentHP = hp
	return FleeResult{
		DamageTaken: dmg,
		PlayerHP:    hp,
		Narrative:   fmt.Sprintf("Can't escape! %s hits you for %d!", monster.Name, dmg),
	}
}
