package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/completion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/mechanic"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// DamageResult is the outcome of one exchange against a shared target.
type DamageResult struct {
	NewHP       int
	Dead        bool
	Messages    []string
	FleeBlocked bool
	Immune      bool
	// Recoil is damage the attacker takes from the target's mechanics.
	Recoil int
	// Dealt is the HP actually removed from the target and credited to the attacker.
	Dealt int
	Phase int
	// AlreadyComplete is set when the target was completed before this exchange.
	AlreadyComplete bool
	// Completion is non-nil when this exchange completed the target.
	Completion *completion.Summary
}

// DealDamage runs one exchange: mechanic transform, HP update, milestone
// checks, contribution, and completion on death. Regen is not applied here;
// it runs on Engage, GetStatus, and ApplyRegen.
//
// Precondition: rawDamage >= 0; round >= 1.
// Postcondition: 0 <= NewHP <= HPMax. A completed target yields AlreadyComplete
// with no effect. A queued target yields ErrInactive.
func (e *Engine) DealDamage(ctx context.Context, targetID, attackerID string, rawDamage, round int) (*DamageResult, error) {
	unlock := e.locks.lock(targetID)
	defer unlock()

	t, err := e.load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if t.Completed {
		return &DamageResult{
			NewHP:           t.HP,
			Dead:            t.Dead(),
			Phase:           t.Phase,
			AlreadyComplete: true,
			Messages:        []string{fmt.Sprintf("The %s is already defeated.", t.Name)},
		}, nil
	}
	if !t.Active {
		return nil, fmt.Errorf("damaging %s: %w", targetID, ErrInactive)
	}

	now := e.now()

	in := mechanic.Input{
		Target:   t.Clone(),
		Attacker: e.attacker(ctx, attackerID),
		Damage:   rawDamage,
		Round:    round,
		Env:      e.environment(ctx, t, now),
	}
	res := e.mechanics.Apply(in)

	before := t.HP
	t.HP -= res.Damage
	t.ClampHP()
	dealt := before - t.HP

	out := &DamageResult{
		Messages:    res.Messages,
		FleeBlocked: res.FleeBlocked,
		Immune:      res.TargetImmune,
		Recoil:      res.ExtraDamageToAttacker,
		Dealt:       dealt,
	}

	if !t.Dead() {
		e.completion.CheckPhase(ctx, t, e.policy(t.Kind).Phases)
		e.completion.CheckHalfway(ctx, t)
	}
	if res.Relocate && !t.Dead() {
		e.relocate(ctx, t)
	}
	var child *target.SharedTarget
	if res.Split && !t.SplitSpawned && !t.Dead() {
		if child = e.splitChild(t, now); child != nil {
			t.SplitSpawned = true
		}
	}

	if err := e.save(ctx, t); err != nil {
		return nil, err
	}

	if child != nil {
		if err := e.targets.Create(ctx, child); err != nil {
			e.logger.Error("spawning split child", zap.String("target", t.ID), zap.Error(err))
		} else {
			out.Messages = append(out.Messages, fmt.Sprintf("%s splits! A second form appears nearby.", t.Name))
		}
	}

	if err := e.ledger.Record(ctx, t.ID, attackerID, dealt, now); err != nil {
		e.logger.Error("recording contribution", zap.String("target", t.ID), zap.Error(err))
	}
	if res.Lockout && e.cfg.Lockout > 0 {
		if err := e.ledger.Lock(ctx, t.ID, attackerID, now.Add(e.cfg.Lockout)); err != nil {
			e.logger.Error("locking out participant", zap.String("target", t.ID), zap.Error(err))
		}
	}

	if t.Dead() {
		sum, err := e.complete(ctx, t, attackerID)
		if err != nil {
			e.logger.Error("completing target", zap.String("target", t.ID), zap.Error(err))
		}
		out.Completion = sum
	}

	out.NewHP = t.HP
	out.Dead = t.Dead()
	out.Phase = t.Phase

	e.logger.Debug("shared target hit",
		zap.String("target", t.ID),
		zap.String("attacker", attackerID),
		zap.Int("raw", rawDamage),
		zap.Int("dealt", dealt),
		zap.Int("recoil", out.Recoil),
		zap.Int("hp", t.HP),
	)
	return out, nil
}

// relocate moves t to a random eligible room on its floor and announces it.
func (e *Engine) relocate(ctx context.Context, t *target.SharedTarget) {
	room, ok := e.world.RandomRoom(t.Floor, t.RoomID)
	if !ok {
		return
	}
	t.RoomID = room
	e.announcer.Announce(ctx, broadcast.TierImmediate,
		fmt.Sprintf("The %s fled to somewhere on Floor %d!", t.Name, t.Floor))
}

// splitChild builds the half-strength copy placed in a room adjacent to t.
// The copy is unpooled: it holds no capacity slot, earns no pool rewards, and
// has no successor. Returns nil when t's room has no neighbour.
func (e *Engine) splitChild(t *target.SharedTarget, now time.Time) *target.SharedTarget {
	room, ok := e.world.AdjacentRoom(t.RoomID)
	if !ok {
		return nil
	}
	half := t.HPMax / 2
	if half < 1 {
		half = 1
	}
	stamp := now
	return &target.SharedTarget{
		ID:                 uuid.NewString(),
		Kind:               t.Kind,
		Name:               t.Name + " (Split)",
		HP:                 half,
		HPMax:              half,
		Pow:                t.Pow,
		Def:                t.Def,
		Spd:                t.Spd,
		XPReward:           t.XPReward / 2,
		GoldReward:         t.GoldReward / 2,
		Phase:              1,
		RegenRate:          t.RegenRate,
		RegenIntervalHours: t.RegenIntervalHours,
		LastRegenAt:        &stamp,
		Floor:              t.Floor,
		RoomID:             room,
		Active:             true,
		ParentID:           t.ID,
		Pooled:             false,
		CreatedAt:          now,
	}
}

// ApplyRegen applies lazy regen (and any due regen burst) and persists the result.
//
// Postcondition: Returns the HP healed; completed and queued targets heal 0.
func (e *Engine) ApplyRegen(ctx context.Context, targetID string) (int, error) {
	unlock := e.locks.lock(targetID)
	defer unlock()

	t, err := e.load(ctx, targetID)
	if err != nil {
		return 0, err
	}
	if t.Completed || !t.Active {
		return 0, nil
	}
	healed, changed := e.regenerate(ctx, t, e.now())
	if !changed {
		return 0, nil
	}
	if err := e.save(ctx, t); err != nil {
		return 0, err
	}
	return healed, nil
}

// regenerate applies regen and regen_burst to t in memory.
//
// Postcondition: changed reports whether t must be persisted.
func (e *Engine) regenerate(ctx context.Context, t *target.SharedTarget, now time.Time) (healed int, changed bool) {
	before := t.Clone()
	healed = e.regen.Apply(t, now)
	if burst := e.regen.Burst(t, now); burst > 0 {
		healed += burst
		e.announcer.Announce(ctx, broadcast.TierBatched,
			fmt.Sprintf("The %s surges with energy! It heals significantly.", t.Name))
	}
	changed = healed > 0 ||
		!sameTime(before.LastRegenAt, t.LastRegenAt) ||
		!sameTime(before.LastBurstAt, t.LastBurstAt)
	return healed, changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// CheckCompletion completes targetID if it is dead and not yet completed.
//
// Postcondition: Returns a nil Summary when the target is alive or already complete.
func (e *Engine) CheckCompletion(ctx context.Context, targetID, killerID string) (*completion.Summary, error) {
	unlock := e.locks.lock(targetID)
	defer unlock()

	t, err := e.load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if t.Completed || !t.Dead() {
		return nil, nil
	}
	sum, err := e.complete(ctx, t, killerID)
	if err != nil {
		return nil, fmt.Errorf("completing %s: %w", targetID, err)
	}
	return sum, nil
}

// complete finalizes t, clears its minions, and fills the freed slot with the
// next queued target under queueMu so the refill and concurrent activations
// see one consistent count.
//
// Precondition: the caller holds t's per-target lock.
func (e *Engine) complete(ctx context.Context, t *target.SharedTarget, killerID string) (*completion.Summary, error) {
	sum, err := e.completion.Complete(ctx, t, killerID)
	if err != nil || sum == nil {
		return sum, err
	}
	e.minions.RemoveOwned(t.ID)

	if !t.Pooled || !e.policy(t.Kind).ActivateNext {
		return sum, nil
	}
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	id, err := e.completion.ActivateNext(ctx, t.Kind)
	if err != nil {
		e.logger.Error("activating next target", zap.String("kind", string(t.Kind)), zap.Error(err))
	}
	sum.ActivatedID = id
	return sum, nil
}
