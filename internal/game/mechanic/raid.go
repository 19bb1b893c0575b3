package mechanic

import (
	"fmt"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// CrossingThresholds are the HP ratios watched by retribution and boss_flees.
var CrossingThresholds = []float64{0.75, 0.50, 0.25}

// maxEnrageDoublings bounds the enrage_timer exponent.
const maxEnrageDoublings = 16

func registerRaid(e *Engine) {
	e.handlers[target.WindupStrike] = windupStrike
	e.handlers[target.FlatDamageBoost] = flatDamageBoost
	e.handlers[target.AuraDamage] = auraDamage
	e.handlers[target.ArmorPhase] = armorPhase
	e.handlers[target.NoEscape] = noEscape
	e.handlers[target.EnrageTimer] = enrageTimer
	e.handlers[target.ExtraRegen] = noop
	e.handlers[target.RegenBurst] = noop
	e.post[target.Retribution] = retribution
	e.post[target.BossFlees] = bossFlees
	e.post[target.Lockout] = lockout
}

func phaseOf(in *Input) int {
	if in.Target.Phase < 1 {
		return 1
	}
	return in.Target.Phase
}

func windupStrike(in *Input, r *Result) {
	interval := 4 - phaseOf(in)
	if interval < 2 {
		interval = 2
	}
	if in.Round%interval == 0 {
		r.say("WIND-UP! Use DEFEND or DODGE next round!")
	}
	if in.Round > 1 && (in.Round-1)%interval == 0 {
		r.ExtraDamageToAttacker += attackerHPMax(in) / 3
		r.say("The wind-up connects!")
	}
}

func flatDamageBoost(in *Input, r *Result) {
	mult := 1.5 + float64(phaseOf(in)-1)*0.25
	r.ExtraDamageToAttacker += int(float64(attackerHPMax(in)) * 0.05 * mult)
}

func auraDamage(in *Input, r *Result) {
	aura := atLeastOne(int(float64(attackerHPMax(in)) * 0.05 * float64(phaseOf(in))))
	r.ExtraDamageToAttacker += aura
	r.say(fmt.Sprintf("Its aura burns for %d.", aura))
}

func armorPhase(in *Input, r *Result) {
	if in.Env.Contributors < 5 && in.Env.SecretsFound == 0 {
		r.Damage = atLeastOne(r.Damage / 2)
		r.say("Armor holds! Need 5 fighters or a floor secret.")
	}
}

func noEscape(in *Input, r *Result) {
	if ratio(in) <= 0.25 {
		r.FleeBlocked = true
		r.say("NO ESCAPE! Fight to the death!")
	}
}

func enrageTimer(in *Input, r *Result) {
	threshold := 6 - phaseOf(in)
	if threshold < 3 {
		threshold = 3
	}
	if in.Round <= threshold {
		return
	}
	doublings := in.Round - threshold
	if doublings > maxEnrageDoublings {
		doublings = maxEnrageDoublings
	}
	mult := 1 << doublings
	r.ExtraDamageToAttacker += int(float64(attackerHPMax(in)) * 0.1 * float64(mult))
	r.say(fmt.Sprintf("ENRAGED! Damage x%d!", mult))
}

func retribution(in *Input, r *Result) {
	if _, ok := crossedThreshold(in.Target, r.Damage, CrossingThresholds); ok {
		burst := int(float64(attackerHPMax(in)) * 0.3 * float64(phaseOf(in)))
		r.ExtraDamageToAttacker += burst
		r.say(fmt.Sprintf("RETRIBUTION! It unleashes %d damage!", burst))
	}
}

func bossFlees(in *Input, r *Result) {
	if _, ok := crossedThreshold(in.Target, r.Damage, CrossingThresholds); ok {
		r.Relocate = true
		r.say("BOSS FLEES! It relocates on this floor!")
	}
}

func lockout(_ *Input, r *Result) {
	r.Lockout = true
}
