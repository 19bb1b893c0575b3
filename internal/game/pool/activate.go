package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
	"github.com/zvx-echo6/mmud-sub000/internal/game/minion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// ErrAtCapacity is returned when activating a kind that already has MaxActive live targets.
var ErrAtCapacity = errors.New("target kind at capacity")

// ActivateConfig describes one activation.
type ActivateConfig struct {
	// Template supplies name, stats, rewards, mechanics, and placement.
	Template *target.Template
	// ActivePlayers scales raid boss HP; values below 1 count as 1.
	ActivePlayers int
}

// Activate creates and activates a target of kind from cfg.
//
// Precondition: cfg.Template must be non-nil and valid; its kind, when set, must equal kind.
// Postcondition: Returns the new target ID. Raid boss HP is
// min(RaidHPPerPlayer*ActivePlayers, RaidHPCap); emergence HP is uniform in
// [EmergenceHPMin, EmergenceHPMax]. Returns ErrAtCapacity when MaxActive is reached.
func (e *Engine) Activate(ctx context.Context, kind target.Kind, cfg ActivateConfig) (string, error) {
	t, err := e.fromTemplate(kind, cfg.Template)
	if err != nil {
		return "", err
	}

	switch kind {
	case target.KindRaidBoss:
		players := cfg.ActivePlayers
		if players < 1 {
			players = 1
		}
		hp := e.cfg.RaidHPPerPlayer * players
		if e.cfg.RaidHPCap > 0 && hp > e.cfg.RaidHPCap {
			hp = e.cfg.RaidHPCap
		}
		if hp > 0 {
			t.HP, t.HPMax = hp, hp
		}
	case target.KindBreachEmergence:
		if e.cfg.EmergenceHPMax > 0 {
			hp := dice.Between(e.src, e.cfg.EmergenceHPMin, e.cfg.EmergenceHPMax)
			t.HP, t.HPMax = hp, hp
		}
		if t.RoomID == "" {
			if room, ok := e.world.CentralBreachRoom(); ok {
				t.RoomID = room
			}
		}
	}

	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	if err := e.checkCapacity(ctx, kind); err != nil {
		return "", err
	}

	now := e.now()
	t.Active = true
	t.LastRegenAt = &now
	spawned := 0
	if kind == target.KindBreachEmergence {
		spawned = e.spawnBreachMinions(t, now)
	}
	if err := e.targets.Create(ctx, t); err != nil {
		e.minions.RemoveOwned(t.ID)
		return "", fmt.Errorf("activating %s: %w", t.Name, err)
	}
	e.announceMinions(ctx, spawned)

	switch kind {
	case target.KindBounty:
		e.announcer.Announce(ctx, broadcast.TierBatched, fmt.Sprintf("# New bounty: %s", t.Name))
	case target.KindRaidBoss:
		e.announcer.Announce(ctx, broadcast.TierImmediate,
			fmt.Sprintf("The %s stirs on Floor %d. HP: %d. The hunt begins.", t.Name, t.Floor, t.HPMax))
	case target.KindBreachEmergence:
		e.announcer.Announce(ctx, broadcast.TierImmediate,
			fmt.Sprintf("The %s emerges from the Breach! HP: %d.", t.Name, t.HPMax))
	}

	e.logger.Info("target activated",
		zap.String("target", t.ID),
		zap.String("kind", string(kind)),
		zap.String("name", t.Name),
		zap.Int("hp", t.HPMax),
	)
	return t.ID, nil
}

// Enqueue stores an inactive, pooled target to be activated later by day rollover
// or by the completion of another target of the same kind.
//
// Postcondition: Returns the queued target ID.
func (e *Engine) Enqueue(ctx context.Context, tmpl *target.Template) (string, error) {
	if tmpl == nil {
		return "", fmt.Errorf("enqueue: template must not be nil")
	}
	kind, err := target.ParseKind(tmpl.Kind)
	if err != nil {
		return "", fmt.Errorf("enqueue %q: %w", tmpl.ID, err)
	}
	t, err := e.fromTemplate(kind, tmpl)
	if err != nil {
		return "", err
	}
	if err := e.targets.Create(ctx, t); err != nil {
		return "", fmt.Errorf("enqueueing %s: %w", t.Name, err)
	}
	return t.ID, nil
}

// OnNewDay activates queued targets whose AvailableFromDay has arrived, up to
// each kind's MaxActive.
//
// Postcondition: Returns the IDs activated, in activation order.
func (e *Engine) OnNewDay(ctx context.Context) ([]string, error) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	var activated []string
	for _, kind := range target.Kinds {
		if !e.policy(kind).ActivateNext {
			continue
		}
		for {
			id, err := e.completion.ActivateNext(ctx, kind)
			if err != nil {
				return activated, err
			}
			if id == "" {
				break
			}
			activated = append(activated, id)
		}
	}
	return activated, nil
}

func (e *Engine) checkCapacity(ctx context.Context, kind target.Kind) error {
	limit := e.policy(kind).MaxActive
	if limit <= 0 {
		return nil
	}
	active, err := e.activePooled(ctx, kind)
	if err != nil {
		return err
	}
	if len(active) >= limit {
		return fmt.Errorf("activating %s: %w (%d/%d)", kind, ErrAtCapacity, len(active), limit)
	}
	return nil
}

func (e *Engine) fromTemplate(kind target.Kind, tmpl *target.Template) (*target.SharedTarget, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("activate %s: template must not be nil", kind)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if tmpl.Kind != "" && tmpl.Kind != string(kind) {
		return nil, fmt.Errorf("activate %s: template %q has kind %q", kind, tmpl.ID, tmpl.Kind)
	}
	mechanics, unknown := target.ParseMechanics(tmpl.Mechanics)
	for _, name := range unknown {
		e.logger.Warn("dropping unknown mechanic",
			zap.String("template", tmpl.ID),
			zap.String("mechanic", name),
		)
	}
	p := e.policy(kind)
	return &target.SharedTarget{
		ID:                 uuid.NewString(),
		Kind:               kind,
		Name:               tmpl.Name,
		HP:                 tmpl.HPMax,
		HPMax:              tmpl.HPMax,
		Pow:                tmpl.Pow,
		Def:                tmpl.Def,
		Spd:                tmpl.Spd,
		XPReward:           tmpl.XPReward,
		GoldReward:         tmpl.GoldReward,
		Mechanics:          mechanics,
		Phase:              1,
		RegenRate:          p.RegenRate,
		RegenIntervalHours: p.RegenIntervalHours,
		Floor:              tmpl.Floor,
		RoomID:             tmpl.Room,
		Pooled:             true,
		AvailableFromDay:   tmpl.AvailableFromDay,
		CreatedAt:          e.now(),
	}, nil
}

// spawnBreachMinions guards every non-central breach room and stamps the respawn clock.
// Returns the number of minions spawned.
func (e *Engine) spawnBreachMinions(t *target.SharedTarget, now time.Time) int {
	n, err := e.minions.Populate(minion.BreachSpawn(), e.world.BreachRooms(), t.ID)
	if err != nil {
		e.logger.Warn("spawning breach minions", zap.String("target", t.ID), zap.Error(err))
	}
	t.LastMinionSpawnAt = &now
	return n
}

func (e *Engine) announceMinions(ctx context.Context, n int) {
	if n > 0 {
		e.announcer.Announce(ctx, broadcast.TierBatched,
			fmt.Sprintf("Minions stir in the Breach. %d new threats.", n))
	}
}
