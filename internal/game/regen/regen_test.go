package regen_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/zvx-echo6/mmud-sub000/internal/game/regen"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func newTarget(hp, hpMax int, rate, interval float64, last *time.Time) *target.SharedTarget {
	return &target.SharedTarget{
		ID: "t1", Kind: target.KindRaidBoss, HP: hp, HPMax: hpMax,
		RegenRate: rate, RegenIntervalHours: interval, LastRegenAt: last, Phase: 1,
	}
}

func TestApply_TwoIntervals(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 500, 0.03, 8, at(epoch.Add(-16*time.Hour)))
	healed := s.Apply(st, epoch)
	assert.Equal(t, 30, healed)
	assert.Equal(t, 130, st.HP)
	require.NotNil(t, st.LastRegenAt)
	assert.Equal(t, epoch, *st.LastRegenAt)
}

func TestApply_PartialIntervalKeepsClock(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	last := epoch.Add(-7 * time.Hour)
	st := newTarget(100, 500, 0.03, 8, at(last))
	assert.Equal(t, 0, s.Apply(st, epoch))
	assert.Equal(t, 100, st.HP)
	assert.Equal(t, last, *st.LastRegenAt)
}

func TestApply_FirstAccessStampsClock(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 500, 0.03, 8, nil)
	assert.Equal(t, 0, s.Apply(st, epoch))
	require.NotNil(t, st.LastRegenAt)
	assert.Equal(t, epoch, *st.LastRegenAt)
}

func TestApply_NoMutationAtBounds(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	last := epoch.Add(-100 * time.Hour)

	full := newTarget(500, 500, 0.03, 8, at(last))
	assert.Equal(t, 0, s.Apply(full, epoch))
	assert.Equal(t, last, *full.LastRegenAt)

	dead := newTarget(0, 500, 0.03, 8, at(last))
	assert.Equal(t, 0, s.Apply(dead, epoch))
	assert.Equal(t, 0, dead.HP)

	done := newTarget(10, 500, 0.03, 8, at(last))
	done.Completed = true
	assert.Equal(t, 0, s.Apply(done, epoch))
}

func TestApply_ClampsToMax(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(490, 500, 0.03, 8, at(epoch.Add(-80*time.Hour)))
	assert.Equal(t, 10, s.Apply(st, epoch))
	assert.Equal(t, 500, st.HP)
}

// Precondition: 500 HP regenerator at 100 HP, 8h interval.
// Postcondition: Heals a flat 50 per elapsed interval and nothing within one.
func TestApply_Regenerator(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 500, 0.03, 8, at(epoch.Add(-8*time.Hour)))
	st.Mechanics = []target.Mechanic{target.Regenerator}
	assert.Equal(t, 50, s.Apply(st, epoch))
	assert.Equal(t, 150, st.HP)

	assert.Equal(t, 0, s.Apply(st, epoch.Add(time.Minute)))
	assert.Equal(t, 0, s.Apply(st, epoch.Add(7*time.Hour)))
	assert.Equal(t, 150, st.HP)
	assert.Equal(t, 100, s.Apply(st, epoch.Add(16*time.Hour)))

	tiny := newTarget(1, 5, 0.03, 8, nil)
	tiny.Mechanics = []target.Mechanic{target.Regenerator}
	assert.Equal(t, 0, s.Apply(tiny, epoch))
	assert.Equal(t, 1, s.Apply(tiny, epoch.Add(8*time.Hour)))
}

func TestApply_ExtraRegen(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 500, 0.03, 8, at(epoch.Add(-8*time.Hour)))
	st.Mechanics = []target.Mechanic{target.ExtraRegen}
	assert.Equal(t, 25, s.Apply(st, epoch))
}

func TestBurst_OncePerDay(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 1000, 0.03, 8, nil)
	st.Mechanics = []target.Mechanic{target.RegenBurst}

	assert.Equal(t, 150, s.Burst(st, epoch))
	assert.Equal(t, 250, st.HP)
	assert.Equal(t, 0, s.Burst(st, epoch.Add(23*time.Hour)))
	assert.Equal(t, 150, s.Burst(st, epoch.Add(24*time.Hour)))
}

func TestBurst_RequiresMechanic(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	st := newTarget(100, 1000, 0.03, 8, nil)
	assert.Equal(t, 0, s.Burst(st, epoch))
	assert.Nil(t, st.LastBurstAt)
}

func TestApply_Property_HPBounds(t *testing.T) {
	s := regen.NewScheduler(zap.NewNop())
	rapid.Check(t, func(rt *rapid.T) {
		hpMax := rapid.IntRange(1, 10000).Draw(rt, "hp_max")
		hp := rapid.IntRange(0, hpMax).Draw(rt, "hp")
		rate := rapid.Float64Range(0.001, 0.999).Draw(rt, "rate")
		hours := rapid.IntRange(0, 1000).Draw(rt, "hours")
		st := newTarget(hp, hpMax, rate, 8, at(epoch.Add(-time.Duration(hours)*time.Hour)))
		if rapid.Bool().Draw(rt, "regenerator") {
			st.Mechanics = append(st.Mechanics, target.Regenerator)
		}
		healed := s.Apply(st, epoch)
		assert.GreaterOrEqual(rt, healed, 0)
		assert.Equal(rt, hp+healed, st.HP)
		assert.LessOrEqual(rt, st.HP, hpMax)
		assert.GreaterOrEqual(rt, st.HP, 0)
	})
}
