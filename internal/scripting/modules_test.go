package scripting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"pgregory.net/rapid"
)

func runScript(t *testing.T, luaSrc, hook string, args ...lua.LValue) lua.LValue {
	t.Helper()
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("modtest", luaSrc, 0))
	ret, err := mgr.CallHook(context.Background(), "modtest", hook, args...)
	require.NoError(t, err)
	return ret
}

func TestEngineLog_AllLevels(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadString("modtest", `
		function do_all_logs()
			engine.log.debug("d")
			engine.log.info("i")
			engine.log.warn("w")
			engine.log.error("e")
		end
	`, 0))
	_, err := mgr.CallHook(context.Background(), "modtest", "do_all_logs")
	require.NoError(t, err)

	for _, lvl := range []zapcore.Level{zap.DebugLevel, zap.InfoLevel, zap.WarnLevel, zap.ErrorLevel} {
		assert.Equal(t, 1, logs.FilterLevelExact(lvl).FilterLoggerName("lua").Len(),
			"expected one %s entry from lua", lvl)
	}
}

func TestEngineDice_Between_InRange(t *testing.T) {
	ret := runScript(t, `
		function roll() return engine.dice.between(3, 9) end
	`, "roll")
	n, ok := ret.(lua.LNumber)
	require.True(t, ok, "expected LNumber, got %T", ret)
	assert.GreaterOrEqual(t, int(n), 3)
	assert.LessOrEqual(t, int(n), 9)
}

func TestEngineDice_Between_InvertedRangeErrors(t *testing.T) {
	ret := runScript(t, `
		function roll() return engine.dice.between(9, 3) end
	`, "roll")
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineDice_ChanceExtremes(t *testing.T) {
	ret := runScript(t, `
		function check()
			return engine.dice.chance(1) and not engine.dice.chance(0)
		end
	`, "check")
	assert.Equal(t, lua.LTrue, ret)
}

func TestEngineDice_PickEmptyIsNil(t *testing.T) {
	ret := runScript(t, `
		function pick() return engine.dice.pick({}) end
	`, "pick")
	assert.Equal(t, lua.LNil, ret)
}

// Precondition: a non-empty list of distinct strings.
// Postcondition: pick always returns one of them.
func TestProperty_DicePick_ReturnsMember(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadString("modtest", `
		function pick_from(a, b, c)
			local v = engine.dice.pick({a, b, c})
			return v == a or v == b or v == c
		end
	`, 0))
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 3, 3, rapid.ID[string]).Draw(rt, "words")
		ret, err := mgr.CallHook(context.Background(), "modtest", "pick_from",
			lua.LString(words[0]), lua.LString(words[1]), lua.LString(words[2]))
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if ret != lua.LTrue {
			rt.Fatalf("pick returned a non-member for %v", words)
		}
	})
}
