package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/minion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// Engagement is what a participant sees when stepping up to a target.
type Engagement struct {
	Status   string
	Messages []string
	Healed   int
}

// Engage prepares a target for a participant's fight: lockout check, lazy regen
// and regen burst, summoner adds, and lazy breach minion respawn.
//
// Postcondition: Returns ErrLockedOut while the participant's lockout runs and
// ErrInactive for queued targets. A completed target returns its defeated status.
func (e *Engine) Engage(ctx context.Context, targetID, playerID string) (*Engagement, error) {
	unlock := e.locks.lock(targetID)
	defer unlock()

	t, err := e.load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	fighters := e.fighters(ctx, t.ID)
	if t.Completed {
		return &Engagement{Status: FormatStatus(t, fighters)}, nil
	}
	if !t.Active {
		return nil, fmt.Errorf("engaging %s: %w", targetID, ErrInactive)
	}

	now := e.now()
	until, locked, err := e.ledger.LockedUntil(ctx, t.ID, playerID, now)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, fmt.Errorf("engaging %s until %s: %w", targetID, until.Format(time.RFC3339), ErrLockedOut)
	}

	eng := &Engagement{}
	healed, changed := e.regenerate(ctx, t, now)
	eng.Healed = healed

	if t.Has(target.Summoner) && t.RoomID != "" {
		want := 1
		if t.Kind == target.KindRaidBoss {
			want = t.Phase
		}
		n, err := e.minions.Fill(minion.BossAdd(t.Floor), t.RoomID, t.ID, want)
		if err != nil {
			e.logger.Warn("summoning adds", zap.String("target", t.ID), zap.Error(err))
		}
		if n > 0 {
			eng.Messages = append(eng.Messages, fmt.Sprintf("It summons reinforcements! (%d adds)", n))
		}
	}

	spawned := 0
	if t.Kind == target.KindBreachEmergence && e.minionsDue(t, now) {
		spawned = e.spawnBreachMinions(t, now)
		changed = true
	}

	if changed {
		if err := e.save(ctx, t); err != nil {
			return nil, err
		}
	}
	e.announceMinions(ctx, spawned)
	eng.Status = FormatStatus(t, fighters)
	return eng, nil
}

func (e *Engine) minionsDue(t *target.SharedTarget, now time.Time) bool {
	if t.LastMinionSpawnAt == nil {
		return true
	}
	return e.cfg.MinionRespawn > 0 && now.Sub(*t.LastMinionSpawnAt) >= e.cfg.MinionRespawn
}

// GetStatus applies lazy regen and returns the target's one-line status.
func (e *Engine) GetStatus(ctx context.Context, targetID string) (string, error) {
	unlock := e.locks.lock(targetID)
	defer unlock()

	t, err := e.load(ctx, targetID)
	if err != nil {
		return "", err
	}
	if err := e.refresh(ctx, t); err != nil {
		return "", err
	}
	return FormatStatus(t, e.fighters(ctx, t.ID)), nil
}

// refresh applies and persists lazy regen on a live target.
func (e *Engine) refresh(ctx context.Context, t *target.SharedTarget) error {
	if t.Completed || !t.Active {
		return nil
	}
	if _, changed := e.regenerate(ctx, t, e.now()); changed {
		return e.save(ctx, t)
	}
	return nil
}

func (e *Engine) fighters(ctx context.Context, targetID string) int {
	n, err := e.ledger.Contributors(ctx, targetID)
	if err != nil {
		e.logger.Warn("counting fighters", zap.String("target", targetID), zap.Error(err))
		return 0
	}
	return n
}

// FormatStatus renders a target for display.
func FormatStatus(t *target.SharedTarget, fighters int) string {
	pct := 0.0
	if t.HPMax > 0 {
		pct = float64(t.HP) / float64(t.HPMax) * 100
	}
	switch t.Kind {
	case target.KindBounty:
		if t.Completed {
			return fmt.Sprintf("%s (slain)", t.Name)
		}
		return fmt.Sprintf("%s %d/%dHP", t.Name, t.HP, t.HPMax)
	case target.KindRaidBoss:
		if t.Completed || t.Dead() {
			return fmt.Sprintf("The %s has been defeated!", t.Name)
		}
		return fmt.Sprintf("%s HP:%d/%d P%d %.0f%% %d fighters", t.Name, t.HP, t.HPMax, t.Phase, pct, fighters)
	case target.KindBreachEmergence:
		if t.Completed || t.Dead() {
			return fmt.Sprintf("The %s has been destroyed.", t.Name)
		}
		return fmt.Sprintf("%s HP:%d/%d (%.0f%%) %d fighters", t.Name, t.HP, t.HPMax, pct, fighters)
	default:
		if t.Completed || t.Dead() {
			return fmt.Sprintf("The %s has been defeated!", t.Name)
		}
		return fmt.Sprintf("%s HP:%d/%d", t.Name, t.HP, t.HPMax)
	}
}

// ActiveTargets returns the live targets of kind; an empty kind lists every kind.
func (e *Engine) ActiveTargets(ctx context.Context, kind target.Kind) ([]*target.SharedTarget, error) {
	yes, no := true, false
	ts, err := e.targets.List(ctx, target.ListFilter{Kind: kind, Active: &yes, Completed: &no})
	if err != nil {
		return nil, fmt.Errorf("listing active targets: %w", err)
	}
	return ts, nil
}

func (e *Engine) activePooled(ctx context.Context, kind target.Kind) ([]*target.SharedTarget, error) {
	ts, err := e.ActiveTargets(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := ts[:0]
	for _, t := range ts {
		if t.Pooled {
			out = append(out, t)
		}
	}
	return out, nil
}

// StatusBoard renders every pooled live target of kind on one line, applying
// lazy regen to each first.
func (e *Engine) StatusBoard(ctx context.Context, kind target.Kind) (string, error) {
	ts, err := e.activePooled(ctx, kind)
	if err != nil {
		return "", err
	}
	if len(ts) == 0 {
		if kind == target.KindBounty {
			return "No active bounties. Check back later.", nil
		}
		return fmt.Sprintf("No active %s.", strings.ReplaceAll(string(kind), "_", " ")), nil
	}
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		line, err := e.GetStatus(ctx, t.ID)
		if err != nil {
			if errors.Is(err, target.ErrVersionConflict) {
				line = FormatStatus(t, e.fighters(ctx, t.ID))
			} else {
				return "", err
			}
		}
		parts = append(parts, line)
	}
	if kind == target.KindBounty {
		return "Bounties: " + strings.Join(parts, " | "), nil
	}
	return strings.Join(parts, " | "), nil
}

// Announce publishes an operator message through the engine's announcer.
func (e *Engine) Announce(ctx context.Context, tier broadcast.Tier, text string) {
	e.announcer.Announce(ctx, tier, text)
}
