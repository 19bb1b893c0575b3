package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/zvx-echo6/mmud-sub000/internal/game/combat"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
)

// seqSource returns queued values in order, clamped into [0, n).
type seqSource struct {
	vals []int
	i    int
}

func (s *seqSource) Intn(n int) int {
	if s.i >= len(s.vals) {
		return 0
	}
	v := s.vals[s.i]
	s.i++
	if v >= n {
		return n - 1
	}
	return v
}

func TestCombatant_IsPlayer(t *testing.T) {
	p := combat.Combatant{Kind: combat.KindPlayer, Name: "Alice", MaxHP: 50, CurrentHP: 50}
	m := combat.Combatant{Kind: combat.KindMonster, Name: "Gloom Wyrm", MaxHP: 80, CurrentHP: 80}
	assert.True(t, p.IsPlayer())
	assert.False(t, m.IsPlayer())
}

func TestCombatant_ApplyDamage(t *testing.T) {
	c := combat.Combatant{Kind: combat.KindMonster, Name: "G", MaxHP: 18, CurrentHP: 18}
	c.ApplyDamage(5)
	assert.Equal(t, 13, c.CurrentHP)
	c.ApplyDamage(20)
	assert.Equal(t, 0, c.CurrentHP)
	assert.True(t, c.IsDead())
}

func TestBaseDamage(t *testing.T) {
	assert.Equal(t, 8, combat.BaseDamage(10, 6))
	assert.Equal(t, 1, combat.BaseDamage(1, 30))
	assert.Equal(t, 1, combat.BaseDamage(0, 0))
}

func TestCalcDamage_VarianceBounds(t *testing.T) {
	// base 10; variance 80 → 8, variance 120 → 12
	assert.Equal(t, 8, combat.CalcDamage(10, 0, &seqSource{vals: []int{0}}))
	assert.Equal(t, 12, combat.CalcDamage(10, 0, &seqSource{vals: []int{40}}))
	assert.Equal(t, 10, combat.CalcDamage(10, 0, &seqSource{vals: []int{20}}))
}

func TestCalcDamage_Property_AtLeastOne(t *testing.T) {
	src := dice.NewCryptoSource()
	rapid.Check(t, func(rt *rapid.T) {
		pow := rapid.IntRange(0, 100).Draw(rt, "pow")
		def := rapid.IntRange(0, 100).Draw(rt, "def")
		dmg := combat.CalcDamage(pow, def, src)
		base := combat.BaseDamage(pow, def)
		assert.GreaterOrEqual(rt, dmg, 1)
		assert.LessOrEqual(rt, dmg, base*120/100+1)
	})
}

func TestCheckInitiative(t *testing.T) {
	// 3 vs 1: draws 0..2 favour the player
	assert.True(t, combat.CheckInitiative(3, 1, &seqSource{vals: []int{2}}))
	assert.False(t, combat.CheckInitiative(3, 1, &seqSource{vals: []int{3}}))
	assert.True(t, combat.CheckInitiative(0, 0, &seqSource{vals: []int{0}}))
	assert.False(t, combat.CheckInitiative(0, 0, &seqSource{vals: []int{1}}))
	assert.False(t, combat.CheckInitiative(0, 5, dice.NewCryptoSource()))
}

func TestFleeChance_Clamped(t *testing.T) {
	assert.InDelta(t, 0.6, combat.FleeChance(3, combat.DefaultFleeBase), 1e-9)
	assert.InDelta(t, 0.2, combat.FleeChance(-20, combat.DefaultFleeBase), 1e-9)
	assert.InDelta(t, 0.95, combat.FleeChance(40, combat.DefaultFleeBase), 1e-9)
}

func TestFleeChance_Property_InRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		spd := rapid.IntRange(-100, 100).Draw(rt, "spd")
		c := combat.FleeChance(spd, combat.DefaultFleeBase)
		assert.GreaterOrEqual(rt, c, 0.2)
		assert.LessOrEqual(rt, c, 0.95)
	})
}

func TestAttemptFlee_FailureLeavesOneHP(t *testing.T) {
	player := &combat.Combatant{Kind: combat.KindPlayer, Spd: 3, Def: 0, CurrentHP: 3, MaxHP: 50}
	monster := &combat.Combatant{Kind: combat.KindMonster, Name: "Ogre", Pow: 40}
	// 9999 fails the 0.6 roll; 40 → max variance
	res := combat.AttemptFlee(player, monster, combat.DefaultFleeBase, &seqSource{vals: []int{9999, 40}})
	assert.False(t, res.Success)
	assert.Equal(t, 48, res.DamageTaken)
	assert.Equal(t, 1, res.PlayerHP)
	assert.Equal(t, 1, player.CurrentHP)
}

func TestAttemptFlee_Success(t *testing.T) {
	player := &combat.Combatant{Kind: combat.KindPlayer, Spd: 3, CurrentHP: 30}
	monster := &combat.Combatant{Kind: combat.KindMonster, Name: "Ogre", Pow: 40}
	res := combat.AttemptFlee(player, monster, combat.DefaultFleeBase, &seqSource{vals: []int{0}})
	assert.True(t, res.Success)
	assert.Equal(t, 30, res.PlayerHP)
	assert.Contains(t, res.Narrative, "Ogre")
}

func TestResolveRound_KillDeniesCounter(t *testing.T) {
	player := &combat.Combatant{Kind: combat.KindPlayer, Pow: 20, Spd: 5, CurrentHP: 10, MaxHP: 10}
	monster := &combat.Combatant{Kind: combat.KindMonster, Name: "Rat", Pow: 50, CurrentHP: 5, MaxHP: 5}
	// initiative draw 0 < 5 → player first
	res := combat.ResolveRound(player, monster, &seqSource{vals: []int{0, 20, 20}})
	assert.True(t, res.PlayerFirst)
	assert.True(t, res.MonsterDead)
	assert.Equal(t, 0, res.MonsterDamage)
	assert.Equal(t, 10, res.PlayerHP)
	assert.Contains(t, res.Narrative, "It falls!")
}

func TestResolveRound_MonsterFirst(t *testing.T) {
	player := &combat.Combatant{Kind: combat.KindPlayer, Pow: 5, Spd: 1, CurrentHP: 100, MaxHP: 100}
	monster := &combat.Combatant{Kind: combat.KindMonster, Name: "Ogre", Pow: 10, Spd: 9, CurrentHP: 50, MaxHP: 50}
	res := combat.ResolveRound(player, monster, &seqSource{vals: []int{5, 20, 20}})
	assert.False(t, res.PlayerFirst)
	assert.Equal(t, 90, res.PlayerHP)
	assert.Equal(t, 45, res.MonsterHP)
	assert.Contains(t, res.Narrative, "Ogre strikes first")
}

func TestResolveRound_Property_HPNeverNegative(t *testing.T) {
	src := dice.NewCryptoSource()
	rapid.Check(t, func(rt *rapid.T) {
		player := &combat.Combatant{
			Kind: combat.KindPlayer,
			Pow:  rapid.IntRange(0, 50).Draw(rt, "ppow"),
			Def:  rapid.IntRange(0, 50).Draw(rt, "pdef"),
			Spd:  rapid.IntRange(0, 20).Draw(rt, "pspd"),
		}
		player.CurrentHP = rapid.IntRange(1, 200).Draw(rt, "php")
		monster := &combat.Combatant{
			Kind: combat.KindMonster,
			Pow:  rapid.IntRange(0, 50).Draw(rt, "mpow"),
			Def:  rapid.IntRange(0, 50).Draw(rt, "mdef"),
			Spd:  rapid.IntRange(0, 20).Draw(rt, "mspd"),
		}
		monster.CurrentHP = rapid.IntRange(1, 200).Draw(rt, "mhp")
		res := combat.ResolveRound(player, monster, src)
		assert.GreaterOrEqual(rt, res.PlayerHP, 0)
		assert.GreaterOrEqual(rt, res.MonsterHP, 0)
		assert.False(rt, res.PlayerDead && res.MonsterDead)
	})
}
