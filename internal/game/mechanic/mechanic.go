// Package mechanic transforms one combat exchange against a shared target using
// the target's declared mechanic set and phase. Every handler is a pure function
// of its Input.
package mechanic

import (
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// Environment carries the world facts mechanics depend on.
type Environment struct {
	// DayNumber is the current epoch day (1-based).
	DayNumber int
	// SecretsFound counts discovered secrets on the target's floor.
	SecretsFound int
	// Contributors counts distinct participants with damage > 0.
	Contributors int
	// MinionAlive reports a living minion in the target's room.
	MinionAlive bool
}

// Input is everything one exchange is evaluated against.
type Input struct {
	// Target is a read-only snapshot taken before the hit.
	Target   *target.SharedTarget
	Attacker player.Stats
	Damage   int
	Round    int
	Env      Environment
}

// Result is the transformed exchange.
type Result struct {
	Damage                int
	ExtraDamageToAttacker int
	Messages              []string
	FleeBlocked           bool
	TargetImmune          bool
	// Relocate asks the caller to move the target to another room on its floor.
	Relocate bool
	// Split asks the caller to spawn the target's split child.
	Split bool
	// Lockout asks the caller to lock the attacker out of re-engaging.
	Lockout bool
}

func (r *Result) say(msg string) { r.Messages = append(r.Messages, msg) }

// handler mutates the running result for one mechanic.
type handler func(in *Input, r *Result)

// Engine applies registered handlers in the target's declaration order.
type Engine struct {
	logger   *zap.Logger
	handlers map[target.Mechanic]handler
	post     map[target.Mechanic]handler
}

// NewEngine creates an Engine with every standard and raid mechanic registered.
//
// Precondition: logger must be non-nil.
func NewEngine(logger *zap.Logger) *Engine {
	e := &Engine{
		logger:   logger,
		handlers: make(map[target.Mechanic]handler),
		post:     make(map[target.Mechanic]handler),
	}
	registerStandard(e)
	registerRaid(e)
	return e
}

// Apply transforms in.Damage through the target's mechanics.
//
// Precondition: in.Target must be non-nil; in.Damage >= 0.
// Postcondition: Result.Damage >= 0; Result.Damage == 0 whenever TargetImmune;
// ExtraDamageToAttacker >= 0.
func (e *Engine) Apply(in Input) Result {
	r := Result{Damage: in.Damage}
	if r.Damage < 0 {
		r.Damage = 0
	}

	for _, m := range in.Target.Mechanics {
		if _, isPost := e.post[m]; isPost {
			continue
		}
		h, ok := e.handlers[m]
		if !ok {
			e.logger.Warn("mechanic has no handler; skipping",
				zap.String("target", in.Target.ID),
				zap.String("mechanic", string(m)),
			)
			continue
		}
		h(&in, &r)
	}

	if r.TargetImmune || r.Damage < 0 {
		r.Damage = 0
	}

	// Post-hit mechanics see the final damage of the exchange.
	for _, m := range in.Target.Mechanics {
		if h, ok := e.post[m]; ok {
			h(&in, &r)
		}
	}

	if r.ExtraDamageToAttacker < 0 {
		r.ExtraDamageToAttacker = 0
	}
	return r
}

// ratio is the pre-hit HP ratio of the target.
func ratio(in *Input) float64 {
	return in.Target.Ratio()
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// attackerHPMax falls back to the default when the attacker's HPMax is unknown.
func attackerHPMax(in *Input) int {
	if in.Attacker.HPMax <= 0 {
		return player.DefaultHPMax
	}
	return in.Attacker.HPMax
}

// crossedThreshold reports the first of thresholds that damage carries HP across.
func crossedThreshold(t *target.SharedTarget, damage int, thresholds []float64) (float64, bool) {
	if damage <= 0 {
		return 0, false
	}
	for _, th := range thresholds {
		line := int(float64(t.HPMax) * th)
		if t.HP > line && t.HP-damage <= line {
			return th, true
		}
	}
	return 0, false
}
