package mechanic

import (
	"fmt"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

func registerStandard(e *Engine) {
	e.handlers[target.Armored] = armored
	e.handlers[target.Enraged] = enraged
	e.handlers[target.Stalwart] = stalwart
	e.handlers[target.Warded] = warded
	e.handlers[target.Phasing] = phasing
	e.handlers[target.Draining] = draining
	e.handlers[target.RotatingResistance] = rotatingResistance
	e.handlers[target.Retaliator] = retaliator
	e.handlers[target.Summoner] = summoner
	e.handlers[target.Regenerator] = noop
	e.handlers[target.Cursed] = noop
	e.post[target.Splitting] = splitting
}

func noop(*Input, *Result) {}

func armored(in *Input, r *Result) {
	if ratio(in) > 0.5 {
		r.Damage = atLeastOne(r.Damage / 2)
		r.say("Armor absorbs half the blow.")
	}
}

func enraged(in *Input, r *Result) {
	if ratio(in) <= 0.5 {
		r.ExtraDamageToAttacker += attackerHPMax(in) / 10
		r.Damage = r.Damage * 5 / 4
		r.say("It rages! Hits harder but more reckless.")
	}
}

func stalwart(in *Input, r *Result) {
	if in.Round <= 1 {
		r.FleeBlocked = true
		r.say("It blocks the exit!")
	}
}

func warded(in *Input, r *Result) {
	if in.Env.SecretsFound == 0 {
		r.Damage = atLeastOne(r.Damage * 67 / 100)
		r.say("A ward shields it. Find secrets on this floor.")
	}
}

func phasing(in *Input, r *Result) {
	if in.Env.DayNumber%2 == 0 {
		r.TargetImmune = true
		r.Damage = 0
		r.say("It phases out of reality. Try tomorrow.")
	}
}

func draining(_ *Input, r *Result) {
	drain := atLeastOne(r.Damage / 10)
	r.ExtraDamageToAttacker += drain
	r.say(fmt.Sprintf("It drains %dHP from you!", drain))
}

func rotatingResistance(in *Input, r *Result) {
	if in.Attacker.HighestIsPow() {
		r.Damage = atLeastOne(r.Damage / 3)
		r.say("It resists physical attacks!")
	}
}

func retaliator(_ *Input, r *Result) {
	reflected := atLeastOne(r.Damage / 5)
	r.ExtraDamageToAttacker += reflected
	r.say(fmt.Sprintf("It reflects %d damage back!", reflected))
}

func summoner(in *Input, r *Result) {
	if in.Env.MinionAlive {
		r.TargetImmune = true
		r.Damage = 0
		r.say("Kill the minion first!")
	}
}

func splitting(in *Input, r *Result) {
	t := in.Target
	if t.SplitSpawned || t.ParentID != "" || t.HPMax <= 0 {
		return
	}
	after := t.HP - r.Damage
	if after > 0 && float64(after)/float64(t.HPMax) <= 0.5 {
		r.Split = true
		r.say("It shudders and splits in two!")
	}
}
