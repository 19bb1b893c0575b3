// Package regen applies lazy, interval-based HP regeneration to shared targets.
// Nothing here runs on a timer; callers invoke Apply when a target is accessed.
package regen

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

const (
	// ExtraRegenRate replaces the configured rate when the extra_regen mechanic is present.
	ExtraRegenRate = 0.05
	// BurstFraction is the share of HPMax healed by regen_burst.
	BurstFraction = 0.15
	// BurstCooldown is the minimum time between two regen bursts.
	BurstCooldown = 24 * time.Hour
)

// Scheduler computes regen for shared targets.
type Scheduler struct {
	logger *zap.Logger
}

// NewScheduler creates a Scheduler.
//
// Precondition: logger must be non-nil.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Apply heals t for every whole regen interval elapsed since LastRegenAt.
// A regenerator heals a flat tenth of HPMax per interval in place of the rate.
//
// Precondition: t must be non-nil.
// Postcondition: Returns the HP healed; 0 <= t.HP <= t.HPMax. When no whole
// interval has elapsed, t is left untouched so partial progress is kept.
func (s *Scheduler) Apply(t *target.SharedTarget, now time.Time) int {
	if t.Completed || t.HP <= 0 || t.HP >= t.HPMax {
		return 0
	}

	if t.LastRegenAt == nil {
		stamp := now
		t.LastRegenAt = &stamp
		return 0
	}

	if t.RegenIntervalHours <= 0 {
		return 0
	}
	hours := now.Sub(*t.LastRegenAt).Hours()
	intervals := int(math.Floor(hours / t.RegenIntervalHours))
	if intervals <= 0 {
		return 0
	}

	var perInterval int
	switch {
	case t.Has(target.Regenerator):
		perInterval = max(1, t.HPMax/10)
	case t.Has(target.ExtraRegen):
		perInterval = ceilShare(t.HPMax, ExtraRegenRate)
	default:
		perInterval = ceilShare(t.HPMax, t.RegenRate)
	}
	healed := s.heal(t, perInterval*intervals)
	stamp := now
	t.LastRegenAt = &stamp

	s.logger.Debug("regen applied",
		zap.String("target", t.ID),
		zap.Int("intervals", intervals),
		zap.Int("healed", healed),
		zap.Int("hp", t.HP),
	)
	return healed
}

// Burst applies the regen_burst mechanic: a 15% heal at most once per 24 hours.
//
// Precondition: t must be non-nil.
// Postcondition: Returns the HP healed; LastBurstAt is stamped only when a burst fires.
func (s *Scheduler) Burst(t *target.SharedTarget, now time.Time) int {
	if !t.Has(target.RegenBurst) || t.Completed || t.HP <= 0 || t.HP >= t.HPMax {
		return 0
	}
	if t.LastBurstAt != nil && now.Sub(*t.LastBurstAt) < BurstCooldown {
		return 0
	}
	heal := ceilShare(t.HPMax, BurstFraction)
	healed := s.heal(t, heal)
	stamp := now
	t.LastBurstAt = &stamp
	s.logger.Info("regen burst",
		zap.String("target", t.ID),
		zap.Int("healed", healed),
	)
	return healed
}

// ceilShare returns ceil(hpMax*fraction) using decimal arithmetic so that
// rates like 0.03 do not pick up binary rounding error.
func ceilShare(hpMax int, fraction float64) int {
	return int(decimal.NewFromInt(int64(hpMax)).Mul(decimal.NewFromFloat(fraction)).Ceil().IntPart())
}

func (s *Scheduler) heal(t *target.SharedTarget, amount int) int {
	before := t.HP
	t.HP += amount
	t.ClampHP()
	return t.HP - before
}
