package combat

import "fmt"

// RoundResult holds the outcome of one exchange between a player and a monster.
type RoundResult struct {
	PlayerDamage  int
	MonsterDamage int
	PlayerFirst   bool
	PlayerHP      int
	MonsterHP     int
	MonsterDead   bool
	PlayerDead    bool
	Narrative     string
}

// ResolveRound resolves one exchange: both sides attack once in initiative order,
// and a killing first strike denies the counter-attack.
//
// Precondition: player and monster must be non-nil; src must be non-nil.
// Postcondition: CurrentHP of both combatants is updated in place and floored at 0;
// the returned damage of a denied counter-attack is 0.
func ResolveRound(player, monster *Combatant, src Source) RoundResult {
	first := CheckInitiative(player.Spd, monster.Spd, src)
	pDmg := CalcDamage(player.Pow, monster.Def, src)
	mDmg := CalcDamage(monster.Pow, player.Def, src)

	var narrative string
	if first {
		monster.ApplyDamage(pDmg)
		if monster.IsDead() {
			mDmg = 0
			narrative = fmt.Sprintf("You strike %s for %d! It falls!", monster.Name, pDmg)
		} else {
			player.ApplyDamage(mDmg)
			narrative = fmt.Sprintf("You strike %s for %d! It hits back for %d.", monster.Name, pDmg, mDmg)
		}
	} else {
		player.ApplyDamage(mDmg)
		if player.IsDead() {
			pDmg = 0
			narrative = fmt.Sprintf("%s strikes first for %d! You fall!", monster.Name, mDmg)
		} else {
			monster.ApplyDamage(pDmg)
			narrative = fmt.Sprintf("%s strikes first for %d! You hit back for %d.", monster.Name, mDmg, pDmg)
		}
	}

	return RoundResult{
		PlayerDamage:  pDmg,
		MonsterDamage: mDmg,
		PlayerFirst:   first,
		PlayerHP:      player.CurrentHP,
		MonsterHP:     monster.CurrentHP,
		MonsterDead:   monster.IsDead(),
		PlayerDead:    player.IsDead(),
		Narrative:     narrative,
	}
}
