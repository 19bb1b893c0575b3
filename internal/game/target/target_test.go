package target_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

func TestParseKind(t *testing.T) {
	for _, k := range target.Kinds {
		got, err := target.ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := target.ParseKind("dragon")
	assert.Error(t, err)
}

func TestKind_Rewarded(t *testing.T) {
	assert.True(t, target.KindBounty.Rewarded())
	assert.True(t, target.KindRaidBoss.Rewarded())
	assert.False(t, target.KindBreachEmergence.Rewarded())
	assert.False(t, target.KindFloorBoss.Rewarded())
}

func TestParseMechanics_DropsUnknown(t *testing.T) {
	known, unknown := target.ParseMechanics([]string{"armored", " Enraged ", "laser_eyes", "", "armored"})
	assert.Equal(t, []target.Mechanic{target.Armored, target.Enraged}, known)
	assert.Equal(t, []string{"laser_eyes"}, unknown)
}

func TestParseMechanics_Property_OnlyKnown(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.SliceOf(rapid.StringMatching(`[a-z_]{0,12}`)).Draw(rt, "raw")
		known, _ := target.ParseMechanics(raw)
		seen := map[target.Mechanic]bool{}
		for _, m := range known {
			assert.True(rt, m.Known())
			assert.False(rt, seen[m], "duplicate %s", m)
			seen[m] = true
		}
	})
}

func TestSharedTarget_RatioAndClamp(t *testing.T) {
	st := &target.SharedTarget{HP: 80, HPMax: 100}
	assert.InDelta(t, 0.8, st.Ratio(), 1e-9)
	st.HP = 150
	st.ClampHP()
	assert.Equal(t, 100, st.HP)
	st.HP = -5
	st.ClampHP()
	assert.Equal(t, 0, st.HP)
	assert.True(t, st.Dead())
	assert.Equal(t, 0.0, (&target.SharedTarget{}).Ratio())
}

func TestSharedTarget_CloneIsDeep(t *testing.T) {
	now := time.Now()
	st := &target.SharedTarget{Mechanics: []target.Mechanic{target.Armored}, LastRegenAt: &now}
	c := st.Clone()
	c.Mechanics[0] = target.Enraged
	*c.LastRegenAt = now.Add(time.Hour)
	assert.Equal(t, target.Armored, st.Mechanics[0])
	assert.Equal(t, now, *st.LastRegenAt)
	assert.True(t, st.Has(target.Armored))
	assert.False(t, st.Has(target.Enraged))
}

func TestListFilter_Matches(t *testing.T) {
	yes := true
	st := &target.SharedTarget{Kind: target.KindBounty, Active: true}
	assert.True(t, target.ListFilter{}.Matches(st))
	assert.True(t, target.ListFilter{Kind: target.KindBounty, Active: &yes}.Matches(st))
	assert.False(t, target.ListFilter{Kind: target.KindRaidBoss}.Matches(st))
	assert.False(t, target.ListFilter{Completed: &yes}.Matches(st))
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bounties.yaml"), []byte(`
- id: gloom_wyrm
  name: Gloom Wyrm
  kind: bounty
  hp_max: 120
  pow: 12
  def: 6
  spd: 4
  xp_reward: 50
  gold_reward: 20
  mechanics: [armored, warded]
  floor: 2
  room: f2_r3
- id: ash_hound
  name: Ash Hound
  kind: bounty
  hp_max: 90
  available_from_day: 5
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raid.yaml"), []byte(`
id: warden
name: The Warden
kind: raid_boss
hp_max: 3000
mechanics: [windup_strike, aura_damage]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0644))

	tmpls, err := target.LoadTemplates(dir)
	require.NoError(t, err)
	require.Len(t, tmpls, 3)
	assert.Equal(t, "Gloom Wyrm", tmpls[0].Name)
	assert.Equal(t, []string{"armored", "warded"}, tmpls[0].Mechanics)
	assert.Equal(t, 5, tmpls[1].AvailableFromDay)
	assert.Equal(t, "raid_boss", tmpls[2].Kind)
}

func TestLoadTemplates_InvalidKind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
id: x
name: X
kind: dragon
hp_max: 10
`), 0644))
	_, err := target.LoadTemplates(dir)
	assert.Error(t, err)
}

func TestTemplate_Validate(t *testing.T) {
	good := target.Template{ID: "a", Name: "A", Kind: "bounty", HPMax: 10}
	assert.NoError(t, good.Validate())

	bad := good
	bad.HPMax = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.Name = ""
	assert.Error(t, bad.Validate())

	bad = good
	bad.GoldReward = -1
	assert.Error(t, bad.Validate())
}
