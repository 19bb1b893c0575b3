// Package completion resolves shared-target milestones: phase advances, the
// halfway announcement, and one-shot completion with rewards and succession.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// maxCommitAttempts bounds the reload-and-retry loop when the completed flag
// loses a version race to a writer that did not complete the target.
const maxCommitAttempts = 3

// contributorNamesShown is how many names a completion broadcast lists.
const contributorNamesShown = 5

// Announcer publishes server-wide messages.
type Announcer interface {
	Announce(ctx context.Context, tier broadcast.Tier, text string)
}

// Calendar reports the current epoch day.
type Calendar interface {
	DayNumber(now time.Time) int
}

// Narrator optionally supplies extra flavour text for a milestone event.
type Narrator interface {
	Narrate(ctx context.Context, event string, t *target.SharedTarget, fields map[string]string) (string, bool)
}

// Award is what one contributor received.
type Award struct {
	ParticipantID string
	Damage        int64
	XP            int64
	Gold          int64
	KillerBonus   int64
}

// Failure records a reward that could not be applied.
type Failure struct {
	ParticipantID string
	Err           error
}

// Summary describes one completed target.
type Summary struct {
	TargetID    string
	TargetName  string
	Kind        target.Kind
	KillerID    string
	CompletedAt time.Time
	Awards      []Award
	Failures    []Failure
	// ReplacementID is the weaker successor spawned in place, if any.
	ReplacementID string
	// ActivatedID is the queued target activated to fill the slot, if any.
	// Complete leaves it empty; the engine fills it after serializing the refill.
	ActivatedID string
}

// Coordinator performs milestone checks and completion.
type Coordinator struct {
	targets   target.Store
	ledger    *ledger.Ledger
	players   player.Repository
	announcer Announcer
	calendar  Calendar
	engine    config.EngineConfig
	narrator  Narrator
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a Coordinator.
//
// Precondition: every argument must be non-nil.
func NewCoordinator(
	targets target.Store,
	l *ledger.Ledger,
	players player.Repository,
	announcer Announcer,
	calendar Calendar,
	engine config.EngineConfig,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		targets:   targets,
		ledger:    l,
		players:   players,
		announcer: announcer,
		calendar:  calendar,
		engine:    engine,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNarrator installs an optional narrator; nil disables narration.
func (c *Coordinator) SetNarrator(n Narrator) {
	c.narrator = n
}

// SetClock overrides the wall clock.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// CheckPhase advances t.Phase to 1 + the number of thresholds its HP ratio has reached.
// The phase never moves backwards.
//
// Precondition: thresholds are descending ratios in (0, 1).
// Postcondition: Returns the new phase and true only when the phase advanced;
// the advance is announced once.
func (c *Coordinator) CheckPhase(ctx context.Context, t *target.SharedTarget, thresholds []float64) (int, bool) {
	if len(thresholds) == 0 || t.Dead() {
		return t.Phase, false
	}
	r := t.Ratio()
	phase := 1
	for _, th := range thresholds {
		if r <= th {
			phase++
		}
	}
	if phase <= t.Phase {
		return t.Phase, false
	}
	t.Phase = phase
	c.announcer.Announce(ctx, broadcast.TierImmediate,
		fmt.Sprintf("The %s enters phase %d! It grows stronger.", t.Name, phase))
	c.narrate(ctx, "phase", t, map[string]string{"phase": fmt.Sprint(phase)})
	c.logger.Info("target phase advanced",
		zap.String("target", t.ID),
		zap.Int("phase", phase),
	)
	return phase, true
}

// CheckHalfway marks and announces the first time a living target drops to half HP.
//
// Postcondition: Returns true exactly once per target.
func (c *Coordinator) CheckHalfway(ctx context.Context, t *target.SharedTarget) bool {
	if t.HalfwayAnnounced || t.Dead() || t.HP > t.HPMax/2 {
		return false
	}
	t.HalfwayAnnounced = true
	label := t.Name
	if t.Kind == target.KindBounty {
		label = "Bounty " + t.Name
	}
	c.announcer.Announce(ctx, broadcast.TierBatched,
		fmt.Sprintf("# %s: %d/%dHP. Keep pushing.", label, t.HP, t.HPMax))
	c.narrate(ctx, "halfway", t, nil)
	return true
}

// Complete finalizes a dead target exactly once. The completed flag is committed
// through a version-checked update before any reward is granted, so a second
// caller observes Completed and returns a nil Summary.
//
// Precondition: t is a snapshot taken under the caller's per-target lock.
// Postcondition: Returns (nil, nil) when t is alive or already completed. On
// success t reflects the committed state. Reward failures are collected in
// Summary.Failures and never abort completion. Queued successors are not
// activated here; callers run ActivateNext under their activation lock.
func (c *Coordinator) Complete(ctx context.Context, t *target.SharedTarget, killerID string) (*Summary, error) {
	committed, err := c.commit(ctx, t)
	if err != nil || !committed {
		return nil, err
	}

	sum := &Summary{
		TargetID:    t.ID,
		TargetName:  t.Name,
		Kind:        t.Kind,
		KillerID:    killerID,
		CompletedAt: *t.CompletedAt,
	}
	policy, _ := c.engine.Policy(string(t.Kind))

	totals, err := c.ledger.Totals(ctx, t.ID)
	if err != nil {
		c.logger.Error("loading contributions for completed target",
			zap.String("target", t.ID),
			zap.Error(err),
		)
	}

	if t.Kind.Rewarded() && t.Pooled {
		c.reward(ctx, t, policy, totals, killerID, sum)
	}

	c.announceCompletion(ctx, t, killerID, totals)

	if policy.SpawnReplacement && t.Pooled {
		id, err := c.spawnReplacement(ctx, t)
		if err != nil {
			c.logger.Error("spawning replacement", zap.String("target", t.ID), zap.Error(err))
		}
		sum.ReplacementID = id
	}

	c.logger.Info("target completed",
		zap.String("target", t.ID),
		zap.String("kind", string(t.Kind)),
		zap.String("killer", killerID),
		zap.Int("awards", len(sum.Awards)),
		zap.Int("failures", len(sum.Failures)),
	)
	return sum, nil
}

// commit sets the completed flag via compare-and-swap.
func (c *Coordinator) commit(ctx context.Context, t *target.SharedTarget) (bool, error) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		if t.Completed || !t.Dead() {
			return false, nil
		}
		now := c.now()
		next := t.Clone()
		next.Completed = true
		next.CompletedAt = &now
		next.Active = false
		next.HP = 0

		err := c.targets.Update(ctx, next)
		if err == nil {
			*t = *next
			return true, nil
		}
		if !errors.Is(err, target.ErrVersionConflict) {
			return false, fmt.Errorf("committing completion of %s: %w", t.ID, err)
		}
		fresh, err := c.targets.Get(ctx, t.ID)
		if err != nil {
			return false, fmt.Errorf("reloading %s after version conflict: %w", t.ID, err)
		}
		*t = *fresh
	}
	return false, fmt.Errorf("committing completion of %s: %w", t.ID, target.ErrVersionConflict)
}

func (c *Coordinator) reward(
	ctx context.Context,
	t *target.SharedTarget,
	policy config.KindPolicy,
	totals []ledger.Contribution,
	killerID string,
	sum *Summary,
) {
	xp := Scale(int64(t.XPReward), policy.XPMultiplier)
	gold := Scale(int64(t.GoldReward), policy.GoldMultiplier)
	bonus := Scale(gold, policy.KillerBonusFraction)

	killerCredited := false
	grant := func(id string, damage, xp, gold, bonus int64) {
		a := Award{ParticipantID: id, Damage: damage}
		if err := c.players.AwardXP(ctx, id, xp); err != nil {
			sum.Failures = append(sum.Failures, Failure{ParticipantID: id, Err: err})
			c.logger.Warn("awarding xp", zap.String("participant", id), zap.Error(err))
		} else {
			a.XP = xp
		}
		if err := c.players.AwardGold(ctx, id, gold+bonus); err != nil {
			sum.Failures = append(sum.Failures, Failure{ParticipantID: id, Err: err})
			c.logger.Warn("awarding gold", zap.String("participant", id), zap.Error(err))
		} else {
			a.Gold = gold
			a.KillerBonus = bonus
		}
		sum.Awards = append(sum.Awards, a)
	}

	for _, contrib := range totals {
		if contrib.Damage <= 0 {
			continue
		}
		b := int64(0)
		if contrib.ParticipantID == killerID {
			b = bonus
			killerCredited = true
		}
		grant(contrib.ParticipantID, contrib.Damage, xp, gold, b)
	}
	if !killerCredited && killerID != "" && bonus > 0 {
		if err := c.players.AwardGold(ctx, killerID, bonus); err != nil {
			sum.Failures = append(sum.Failures, Failure{ParticipantID: killerID, Err: err})
			c.logger.Warn("awarding killer bonus", zap.String("participant", killerID), zap.Error(err))
		} else {
			sum.Awards = append(sum.Awards, Award{ParticipantID: killerID, KillerBonus: bonus})
		}
	}
}

// Scale returns floor(base * mult) computed in decimal.
//
// Postcondition: Returns >= 0 for base >= 0 and mult >= 0.
func Scale(base int64, mult float64) int64 {
	return decimal.NewFromInt(base).Mul(decimal.NewFromFloat(mult)).Floor().IntPart()
}

func (c *Coordinator) announceCompletion(ctx context.Context, t *target.SharedTarget, killerID string, totals []ledger.Contribution) {
	killer := c.displayName(ctx, killerID)
	var text string
	tier := broadcast.TierImmediate
	switch t.Kind {
	case target.KindBounty:
		tier = broadcast.TierBatched
		var names []string
		for _, contrib := range totals {
			if contrib.Damage > 0 {
				names = append(names, c.displayName(ctx, contrib.ParticipantID))
			}
		}
		text = fmt.Sprintf("# %s finished %s! Contributors: %s", killer, t.Name, FormatContributors(names))
	case target.KindRaidBoss:
		text = fmt.Sprintf("The %s has been slain! Victory belongs to the Darkcragg!", t.Name)
	case target.KindBreachEmergence:
		text = fmt.Sprintf("! %s struck the final blow! The %s falls!", killer, t.Name)
	default:
		text = fmt.Sprintf("The %s has fallen on Floor %d!", t.Name, t.Floor)
	}
	c.announcer.Announce(ctx, tier, text)
	c.narrate(ctx, "complete", t, map[string]string{"killer": killer})
}

// FormatContributors joins the first five names and counts the rest.
func FormatContributors(names []string) string {
	if len(names) <= contributorNamesShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s +%d",
		strings.Join(names[:contributorNamesShown], ", "),
		len(names)-contributorNamesShown)
}

func (c *Coordinator) displayName(ctx context.Context, id string) string {
	if id == "" {
		return "Someone"
	}
	s, err := c.players.Stats(ctx, id)
	if err != nil || s.Name == "" {
		return id
	}
	return s.Name
}

// spawnReplacement creates a half-strength, non-pooled successor in the same room.
func (c *Coordinator) spawnReplacement(ctx context.Context, t *target.SharedTarget) (string, error) {
	r := Replacement(t, c.now())
	r.ID = uuid.NewString()
	if err := c.targets.Create(ctx, r); err != nil {
		return "", fmt.Errorf("creating replacement for %s: %w", t.ID, err)
	}
	return r.ID, nil
}

// Replacement builds the weaker successor of a completed target.
//
// Postcondition: HPMax == HP == t.HPMax/2 (min 1); stats are halved with a
// floor of 1; rewards are halved; Pooled is false.
func Replacement(t *target.SharedTarget, now time.Time) *target.SharedTarget {
	half := func(v int) int {
		if v/2 < 1 {
			return 1
		}
		return v / 2
	}
	return &target.SharedTarget{
		Kind:               t.Kind,
		Name:               t.Name,
		HP:                 half(t.HPMax),
		HPMax:              half(t.HPMax),
		Pow:                half(t.Pow),
		Def:                half(t.Def),
		Spd:                half(t.Spd),
		XPReward:           t.XPReward / 2,
		GoldReward:         t.GoldReward / 2,
		Phase:              1,
		RegenRate:          t.RegenRate,
		RegenIntervalHours: t.RegenIntervalHours,
		Floor:              t.Floor,
		RoomID:             t.RoomID,
		Active:             true,
		Pooled:             false,
		CreatedAt:          now,
	}
}

// ActivateNext activates the oldest inactive, incomplete, pooled target of kind
// whose AvailableFromDay has arrived, unless kind is already at MaxActive.
//
// Postcondition: Returns the activated ID, or "" when nothing was activated.
func (c *Coordinator) ActivateNext(ctx context.Context, kind target.Kind) (string, error) {
	policy, _ := c.engine.Policy(string(kind))
	no, yes := false, true

	if policy.MaxActive > 0 {
		active, err := c.targets.List(ctx, target.ListFilter{Kind: kind, Active: &yes, Completed: &no})
		if err != nil {
			return "", fmt.Errorf("listing active %s targets: %w", kind, err)
		}
		pooled := 0
		for _, t := range active {
			if t.Pooled {
				pooled++
			}
		}
		if pooled >= policy.MaxActive {
			return "", nil
		}
	}

	queued, err := c.targets.List(ctx, target.ListFilter{Kind: kind, Active: &no, Completed: &no})
	if err != nil {
		return "", fmt.Errorf("listing queued %s targets: %w", kind, err)
	}
	now := c.now()
	day := c.calendar.DayNumber(now)
	for _, next := range queued {
		if !next.Pooled || next.AvailableFromDay > day {
			continue
		}
		next.Active = true
		next.LastRegenAt = &now
		if err := c.targets.Update(ctx, next); err != nil {
			return "", fmt.Errorf("activating %s: %w", next.ID, err)
		}
		if kind == target.KindBounty {
			c.announcer.Announce(ctx, broadcast.TierBatched, fmt.Sprintf("# New bounty: %s", next.Name))
		} else {
			c.announcer.Announce(ctx, broadcast.TierImmediate, fmt.Sprintf("The %s stirs on Floor %d!", next.Name, next.Floor))
		}
		return next.ID, nil
	}
	return "", nil
}

func (c *Coordinator) narrate(ctx context.Context, event string, t *target.SharedTarget, fields map[string]string) {
	if c.narrator == nil {
		return
	}
	if text, ok := c.narrator.Narrate(ctx, event, t, fields); ok && text != "" {
		c.announcer.Announce(ctx, broadcast.TierBatched, text)
	}
}
