package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
)

// fixedSource returns a fixed value, clamped into [0, n).
type fixedSource struct{ v int }

func (f fixedSource) Intn(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

func TestBetween_Bounds(t *testing.T) {
	assert.Equal(t, 500, dice.Between(fixedSource{0}, 500, 800))
	assert.Equal(t, 800, dice.Between(fixedSource{1000}, 500, 800))
	assert.Equal(t, 7, dice.Between(fixedSource{3}, 7, 7))
	assert.Equal(t, 7, dice.Between(fixedSource{3}, 7, 2))
}

func TestBetween_Property(t *testing.T) {
	src := dice.NewCryptoSource()
	rapid.Check(t, func(rt *rapid.T) {
		lo := rapid.IntRange(-1000, 1000).Draw(rt, "lo")
		span := rapid.IntRange(0, 1000).Draw(rt, "span")
		v := dice.Between(src, lo, lo+span)
		assert.GreaterOrEqual(rt, v, lo)
		assert.LessOrEqual(rt, v, lo+span)
	})
}

func TestChance_Extremes(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 100; i++ {
		assert.False(t, dice.Chance(src, 0))
		assert.True(t, dice.Chance(src, 1))
	}
	assert.True(t, dice.Chance(fixedSource{0}, 0.6))
	assert.False(t, dice.Chance(fixedSource{6000}, 0.6))
}

// TestCryptoSource_Intn_InRange verifies the postcondition:
// every value returned by Intn(6) is in [0, 6).
func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

// TestCryptoSource_Intn_PanicsOnZero verifies the precondition:
// Intn panics when called with n <= 0.
func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := dice.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000))
	}
	assert.Panics(t, func() { a.Intn(-1) })
}

func TestLoggedSource_LogsDraws(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	src := dice.NewLoggedSource(fixedSource{2}, zap.New(core))
	assert.Equal(t, 2, src.Intn(6))
	entries := logs.FilterMessage("dice draw").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(6), entries[0].ContextMap()["n"])
		assert.Equal(t, int64(2), entries[0].ContextMap()["result"])
	}
}
