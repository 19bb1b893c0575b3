package pool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/completion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
	"github.com/zvx-echo6/mmud-sub000/internal/game/epoch"
	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/mechanic"
	"github.com/zvx-echo6/mmud-sub000/internal/game/minion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/pool"
	"github.com/zvx-echo6/mmud-sub000/internal/game/regen"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
	"github.com/zvx-echo6/mmud-sub000/internal/game/world"
	"github.com/zvx-echo6/mmud-sub000/internal/storage/memory"
)

const dungeonYAML = `
floors:
  - number: 1
    name: "Upper Halls"
    rooms:
      - id: f1_hub
        title: "Bar"
        hub: true
        exits:
          - direction: north
            target: f1_a
      - id: f1_a
        title: "Collapsed Hall"
        exits:
          - direction: south
            target: f1_hub
          - direction: east
            target: f1_b
      - id: f1_b
        title: "Fungal Grotto"
        exits:
          - direction: west
            target: f1_a
    secrets:
      - id: s1
        room: f1_b
        name: "Loose brick"
  - number: 2
    name: "The Breach"
    rooms:
      - id: b_core
        title: "Breach Heart"
        breach: true
        central: true
        exits:
          - direction: west
            target: b_west
          - direction: east
            target: b_east
      - id: b_west
        title: "West Rim"
        breach: true
        exits:
          - direction: east
            target: b_core
      - id: b_east
        title: "East Rim"
        breach: true
        exits:
          - direction: west
            target: b_core
`

var epochStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	engine  *pool.Engine
	targets *memory.TargetStore
	ledger  *ledger.Ledger
	players *memory.PlayerRepository
	hub     *broadcast.Hub
	world   *world.Manager
	minions *minion.Manager

	mu  sync.Mutex
	now time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		Kinds: map[string]config.KindPolicy{
			"bounty": {
				RegenRate: 0.05, RegenIntervalHours: 8,
				XPMultiplier: 2, GoldMultiplier: 3, KillerBonusFraction: 0.5,
				MaxActive: 2, SpawnReplacement: true, ActivateNext: true,
			},
			"raid_boss": {
				RegenRate: 0.03, RegenIntervalHours: 8,
				XPMultiplier: 3, GoldMultiplier: 3, KillerBonusFraction: 0.5,
				Phases: []float64{0.66, 0.33}, MaxActive: 1,
			},
			"breach_emergence": {RegenRate: 0.03, RegenIntervalHours: 8, MaxActive: 1},
			"floor_boss":       {RegenRate: 0.03, RegenIntervalHours: 8},
		},
		RaidHPPerPlayer: 250,
		RaidHPCap:       6000,
		EmergenceHPMin:  500,
		EmergenceHPMax:  800,
		MinionRespawn:   8 * time.Hour,
		Lockout:         24 * time.Hour,
		MessageLimit:    150,
	}
}

func newHarness(t testing.TB) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith builds a harness whose engine sees the target store through wrap.
func newHarnessWith(t testing.TB, wrap func(target.Store) target.Store) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		targets: memory.NewTargetStore(),
		players: memory.NewPlayerRepository(),
		hub:     broadcast.NewHub(150, logger),
		minions: minion.NewManager(),
		now:     epochStart.Add(26 * time.Hour), // day 2
	}
	src := dice.NewSeededSource(7)
	floors, err := world.LoadDungeonFromBytes([]byte(dungeonYAML))
	require.NoError(t, err)
	h.world, err = world.NewManager(floors, src)
	require.NoError(t, err)
	h.ledger = ledger.New(memory.NewLedgerStore(), logger)

	var store target.Store = h.targets
	if wrap != nil {
		store = wrap(store)
	}

	cal := epoch.NewCalendar(epochStart, 24*time.Hour)
	cfg := engineConfig()
	coord := completion.NewCoordinator(store, h.ledger, h.players, h.hub, cal, cfg, logger)
	coord.SetClock(h.clock)

	h.engine, err = pool.NewEngine(pool.Deps{
		Targets:    store,
		Ledger:     h.ledger,
		Players:    h.players,
		Announcer:  h.hub,
		Calendar:   cal,
		World:      h.world,
		Minions:    h.minions,
		Mechanics:  mechanic.NewEngine(logger),
		Regen:      regen.NewScheduler(logger),
		Completion: coord,
		Source:     src,
		Config:     cfg,
		Logger:     logger,
		Now:        h.clock,
	})
	require.NoError(t, err)

	for _, p := range []*player.Character{
		{ID: "a", Name: "Ash", Level: 3, Pow: 6, Def: 3, Spd: 4, HP: 60, HPMax: 60},
		{ID: "b", Name: "Bram", Level: 2, Pow: 2, Def: 6, Spd: 3, HP: 40, HPMax: 40},
	} {
		h.players.Put(p)
	}
	return h
}

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

func (h *harness) seed(t tb, st *target.SharedTarget) {
	t.Helper()
	if st.Phase == 0 {
		st.Phase = 1
	}
	require.NoError(t, h.targets.Create(context.Background(), st))
}

func (h *harness) get(t tb, id string) *target.SharedTarget {
	t.Helper()
	st, err := h.targets.Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func (h *harness) broadcasts() []string {
	var out []string
	for _, m := range h.hub.History(0) {
		out = append(out, m.Text)
	}
	return out
}

func bounty(id string) *target.SharedTarget {
	return &target.SharedTarget{
		ID: id, Kind: target.KindBounty, Name: "Grave Rat King",
		HP: 100, HPMax: 100, Pow: 8, Def: 4, Spd: 3,
		XPReward: 50, GoldReward: 20,
		RegenRate: 0.05, RegenIntervalHours: 8,
		Floor: 1, RoomID: "f1_a", Active: true, Pooled: true,
	}
}

func TestNewEngine_MissingDeps(t *testing.T) {
	_, err := pool.NewEngine(pool.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Targets")
}

func TestDealDamage_Basic(t *testing.T) {
	h := newHarness(t)
	h.seed(t, bounty("t1"))

	res, err := h.engine.DealDamage(context.Background(), "t1", "a", 30, 1)
	require.NoError(t, err)
	assert.Equal(t, 70, res.NewHP)
	assert.Equal(t, 30, res.Dealt)
	assert.False(t, res.Dead)

	sum, err := h.ledger.Sum(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), sum)
}

// Precondition: armored target at 80% HP receives 10 raw damage.
// Postcondition: 5 damage is dealt.
func TestDealDamage_ArmoredExample(t *testing.T) {
	h := newHarness(t)
	st := bounty("t1")
	st.HP = 80
	st.Mechanics = []target.Mechanic{target.Armored}
	h.seed(t, st)

	res, err := h.engine.DealDamage(context.Background(), "t1", "a", 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Dealt)
	assert.Equal(t, 75, res.NewHP)
}

func TestDealDamage_InactiveAndMissing(t *testing.T) {
	h := newHarness(t)
	st := bounty("q")
	st.Active = false
	h.seed(t, st)

	_, err := h.engine.DealDamage(context.Background(), "q", "a", 5, 1)
	assert.ErrorIs(t, err, pool.ErrInactive)

	_, err = h.engine.DealDamage(context.Background(), "ghost", "a", 5, 1)
	assert.ErrorIs(t, err, target.ErrNotFound)
}

// Precondition: A deals 60 then B deals the killing 40.
// Postcondition: completion fires once with the bounty rewards; later hits are no-ops.
func TestDealDamage_KillCompletesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, bounty("t1"))

	_, err := h.engine.DealDamage(ctx, "t1", "b", 40, 1)
	require.NoError(t, err)
	res, err := h.engine.DealDamage(ctx, "t1", "a", 60, 1)
	require.NoError(t, err)
	assert.True(t, res.Dead)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "a", res.Completion.KillerID)
	assert.NotEmpty(t, res.Completion.ReplacementID)

	a, err := h.players.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.XP)
	assert.Equal(t, int64(90), a.Gold)
	b, err := h.players.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(60), b.Gold)

	again, err := h.engine.DealDamage(ctx, "t1", "b", 10, 2)
	require.NoError(t, err)
	assert.True(t, again.AlreadyComplete)
	assert.Nil(t, again.Completion)

	sum, err := h.engine.CheckCompletion(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Nil(t, sum)

	b, err = h.players.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(60), b.Gold, "no second payout")
}

func TestDealDamage_OverkillCreditsRemainingHP(t *testing.T) {
	h := newHarness(t)
	st := bounty("t1")
	st.HP = 7
	h.seed(t, st)

	res, err := h.engine.DealDamage(context.Background(), "t1", "a", 50, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Dealt)
	assert.Equal(t, 0, res.NewHP)
}

func TestCheckCompletion_AliveIsNil(t *testing.T) {
	h := newHarness(t)
	h.seed(t, bounty("t1"))
	sum, err := h.engine.CheckCompletion(context.Background(), "t1", "a")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

// Precondition: raid boss activated for 4 players at 250 HP each.
// Postcondition: damage to 600 HP advances to phase 2.
func TestRaid_ActivationAndPhase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.engine.Activate(ctx, target.KindRaidBoss, pool.ActivateConfig{
		Template: &target.Template{
			ID: "hollow_king", Name: "Hollow King", Kind: "raid_boss",
			HPMax: 1, Pow: 10, Def: 8, Spd: 4, XPReward: 100, GoldReward: 50, Floor: 1, Room: "f1_b",
		},
		ActivePlayers: 4,
	})
	require.NoError(t, err)
	st := h.get(t, id)
	assert.Equal(t, 1000, st.HPMax)
	assert.Contains(t, h.broadcasts(), "The Hollow King stirs on Floor 1. HP: 1000. The hunt begins.")

	res, err := h.engine.DealDamage(ctx, id, "a", 400, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Phase)
	assert.Contains(t, h.broadcasts(), "The Hollow King enters phase 2! It grows stronger.")

	status, err := h.engine.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hollow King HP:600/1000 P2 60% 1 fighters", status)

	_, err = h.engine.Activate(ctx, target.KindRaidBoss, pool.ActivateConfig{
		Template: &target.Template{ID: "x", Name: "Other", Kind: "raid_boss", HPMax: 10},
	})
	assert.ErrorIs(t, err, pool.ErrAtCapacity)
}

func TestRaid_HPCap(t *testing.T) {
	h := newHarness(t)
	id, err := h.engine.Activate(context.Background(), target.KindRaidBoss, pool.ActivateConfig{
		Template:      &target.Template{ID: "k", Name: "King", Kind: "raid_boss", HPMax: 1},
		ActivePlayers: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 6000, h.get(t, id).HPMax)
}

func TestDealDamage_BossFleesRelocates(t *testing.T) {
	h := newHarness(t)
	st := bounty("boss")
	st.Kind = target.KindFloorBoss
	st.Name = "Warden"
	st.Mechanics = []target.Mechanic{target.BossFlees}
	h.seed(t, st)

	res, err := h.engine.DealDamage(context.Background(), "boss", "a", 30, 1)
	require.NoError(t, err)
	assert.Contains(t, res.Messages, "BOSS FLEES! It relocates on this floor!")
	assert.Equal(t, "f1_b", h.get(t, "boss").RoomID)
	assert.Contains(t, h.broadcasts(), "The Warden fled to somewhere on Floor 1!")
}

func TestDealDamage_SplittingSpawnsOneChild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("boss")
	st.Kind = target.KindFloorBoss
	st.Name = "Ooze"
	st.Mechanics = []target.Mechanic{target.Splitting}
	h.seed(t, st)

	_, err := h.engine.DealDamage(ctx, "boss", "a", 60, 1)
	require.NoError(t, err)
	parent := h.get(t, "boss")
	assert.True(t, parent.SplitSpawned)

	all, err := h.targets.List(ctx, target.ListFilter{Kind: target.KindFloorBoss})
	require.NoError(t, err)
	require.Len(t, all, 2)
	var child *target.SharedTarget
	for _, c := range all {
		if c.ParentID == "boss" {
			child = c
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, "Ooze (Split)", child.Name)
	assert.Equal(t, 50, child.HPMax)
	assert.Equal(t, "f1_b", child.RoomID)

	_, err = h.engine.DealDamage(ctx, "boss", "a", 10, 2)
	require.NoError(t, err)
	all, err = h.targets.List(ctx, target.ListFilter{Kind: target.KindFloorBoss})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSummoner_AddMakesBossImmune(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("boss")
	st.Kind = target.KindFloorBoss
	st.Mechanics = []target.Mechanic{target.Summoner}
	h.seed(t, st)

	eng, err := h.engine.Engage(ctx, "boss", "a")
	require.NoError(t, err)
	assert.Contains(t, eng.Messages, "It summons reinforcements! (1 adds)")
	assert.True(t, h.minions.AliveInRoom("f1_a"))

	res, err := h.engine.DealDamage(ctx, "boss", "a", 20, 1)
	require.NoError(t, err)
	assert.True(t, res.Immune)
	assert.Equal(t, 0, res.Dealt)

	add := h.minions.InstancesInRoom("f1_a")[0]
	_, killed, err := h.minions.Damage(add.ID, add.MaxHP)
	require.NoError(t, err)
	require.True(t, killed)

	res, err = h.engine.DealDamage(ctx, "boss", "a", 20, 2)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Dealt)
}

func TestLockout_BlocksEngageFor24h(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("raid")
	st.Kind = target.KindRaidBoss
	st.HP, st.HPMax = 1000, 1000
	st.Mechanics = []target.Mechanic{target.Lockout}
	h.seed(t, st)

	_, err := h.engine.Engage(ctx, "raid", "a")
	require.NoError(t, err)
	_, err = h.engine.DealDamage(ctx, "raid", "a", 10, 1)
	require.NoError(t, err)

	_, err = h.engine.Engage(ctx, "raid", "a")
	assert.ErrorIs(t, err, pool.ErrLockedOut)
	_, err = h.engine.Engage(ctx, "raid", "b")
	assert.NoError(t, err)

	h.advance(24 * time.Hour)
	_, err = h.engine.Engage(ctx, "raid", "a")
	assert.NoError(t, err)
}

func TestEmergence_ActivationAndMinionRespawn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.engine.Activate(ctx, target.KindBreachEmergence, pool.ActivateConfig{
		Template: &target.Template{ID: "breach", Name: "Breach Creature", Kind: "breach_emergence", HPMax: 1, Floor: 2},
	})
	require.NoError(t, err)
	st := h.get(t, id)
	assert.GreaterOrEqual(t, st.HPMax, 500)
	assert.LessOrEqual(t, st.HPMax, 800)
	assert.Equal(t, "b_core", st.RoomID)
	require.NotNil(t, st.LastMinionSpawnAt)
	assert.True(t, h.minions.AliveInRoom("b_west"))
	assert.True(t, h.minions.AliveInRoom("b_east"))
	assert.False(t, h.minions.AliveInRoom("b_core"))

	west := h.minions.InstancesInRoom("b_west")[0]
	_, _, err = h.minions.Damage(west.ID, 100)
	require.NoError(t, err)

	_, err = h.engine.Engage(ctx, id, "a")
	require.NoError(t, err)
	assert.False(t, h.minions.AliveInRoom("b_west"), "respawn waits for the interval")

	h.advance(8 * time.Hour)
	_, err = h.engine.Engage(ctx, id, "a")
	require.NoError(t, err)
	assert.True(t, h.minions.AliveInRoom("b_west"))
	assert.Contains(t, h.broadcasts(), "Minions stir in the Breach. 1 new threats.")
}

// Precondition: 500 HP target at 100 HP, 3% per 8h, last regen 16h ago.
// Postcondition: ApplyRegen heals 30 to 130.
func TestApplyRegen_Example(t *testing.T) {
	h := newHarness(t)
	last := h.clock().Add(-16 * time.Hour)
	st := bounty("t1")
	st.Kind = target.KindRaidBoss
	st.HP, st.HPMax = 100, 500
	st.RegenRate = 0.03
	st.LastRegenAt = &last
	h.seed(t, st)

	healed, err := h.engine.ApplyRegen(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 30, healed)
	assert.Equal(t, 130, h.get(t, "t1").HP)

	healed, err = h.engine.ApplyRegen(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, healed)
}

func TestStatusBoard_Bounties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	board, err := h.engine.StatusBoard(ctx, target.KindBounty)
	require.NoError(t, err)
	assert.Equal(t, "No active bounties. Check back later.", board)

	a := bounty("t1")
	a.CreatedAt = epochStart
	b := bounty("t2")
	b.Name = "Bone Hound"
	b.HP = 40
	b.CreatedAt = epochStart.Add(time.Minute)
	h.seed(t, a)
	h.seed(t, b)

	board, err = h.engine.StatusBoard(ctx, target.KindBounty)
	require.NoError(t, err)
	assert.Equal(t, "Bounties: Grave Rat King 100/100HP | Bone Hound 40/100HP", board)
}

func TestFormatStatus_Kinds(t *testing.T) {
	emergence := &target.SharedTarget{Kind: target.KindBreachEmergence, Name: "Breach Creature", HP: 300, HPMax: 600}
	assert.Equal(t, "Breach Creature HP:300/600 (50%) 3 fighters", pool.FormatStatus(emergence, 3))
	emergence.Completed = true
	assert.Equal(t, "The Breach Creature has been destroyed.", pool.FormatStatus(emergence, 3))

	raid := &target.SharedTarget{Kind: target.KindRaidBoss, Name: "Hollow King", HP: 0, HPMax: 10, Completed: true}
	assert.Equal(t, "The Hollow King has been defeated!", pool.FormatStatus(raid, 0))

	boss := &target.SharedTarget{Kind: target.KindFloorBoss, Name: "Warden", HP: 5, HPMax: 10}
	assert.Equal(t, "Warden HP:5/10", pool.FormatStatus(boss, 0))
}

func TestEnqueueAndOnNewDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	early, err := h.engine.Enqueue(ctx, &target.Template{ID: "e", Name: "Early", Kind: "bounty", HPMax: 50, AvailableFromDay: 1})
	require.NoError(t, err)
	h.advance(time.Minute)
	late, err := h.engine.Enqueue(ctx, &target.Template{ID: "l", Name: "Late", Kind: "bounty", HPMax: 50, AvailableFromDay: 5})
	require.NoError(t, err)

	activated, err := h.engine.OnNewDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{early}, activated)
	assert.False(t, h.get(t, late).Active)

	h.advance(4 * 24 * time.Hour)
	activated, err = h.engine.OnNewDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{late}, activated)

	_, err = h.engine.Enqueue(ctx, &target.Template{ID: "bad", Name: "Bad", Kind: "dragon", HPMax: 5})
	assert.Error(t, err)
}

func TestActivate_DropsUnknownMechanics(t *testing.T) {
	h := newHarness(t)
	id, err := h.engine.Activate(context.Background(), target.KindFloorBoss, pool.ActivateConfig{
		Template: &target.Template{ID: "w", Name: "Warden", Kind: "floor_boss", HPMax: 200, Mechanics: []string{"Armored", "glitter"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []target.Mechanic{target.Armored}, h.get(t, id).Mechanics)

	_, err = h.engine.Activate(context.Background(), target.KindFloorBoss, pool.ActivateConfig{
		Template: &target.Template{ID: "w", Name: "Warden", Kind: "bounty", HPMax: 200},
	})
	assert.Error(t, err, "kind mismatch")
}

func TestDealDamage_ConcurrentConservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("t1")
	st.HP, st.HPMax = 5000, 5000
	h.seed(t, st)

	var wg sync.WaitGroup
	var mu sync.Mutex
	dealt := 0
	completions := 0
	for i := 0; i < 16; i++ {
		attacker := "a"
		if i%2 == 1 {
			attacker = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 40; j++ {
				res, err := h.engine.DealDamage(ctx, "t1", attacker, 9, 1)
				if err != nil {
					t.Errorf("DealDamage: %v", err)
					return
				}
				mu.Lock()
				dealt += res.Dealt
				if res.Completion != nil {
					completions++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sum, err := h.ledger.Sum(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(dealt), sum)
	assert.Equal(t, 5000, dealt)
	assert.Equal(t, 1, completions)
}

func TestProperty_HPBoundsAndConservation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		ctx := context.Background()
		mechs := rapid.SliceOfNDistinct(rapid.SampledFrom([]target.Mechanic{
			target.Armored, target.Enraged, target.Warded, target.Draining,
			target.Retaliator, target.RotatingResistance, target.ExtraRegen,
		}), 0, 3, func(m target.Mechanic) target.Mechanic { return m }).Draw(rt, "mechanics")
		hpMax := rapid.IntRange(1, 2000).Draw(rt, "hpMax")
		st := bounty("p")
		st.Kind = target.KindRaidBoss
		st.HPMax = hpMax
		st.HP = rapid.IntRange(1, hpMax).Draw(rt, "hp")
		st.Mechanics = mechs
		h.seed(rt, st)

		total := 0
		phase := 1
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "regen") {
				h.advance(time.Duration(rapid.IntRange(0, 20).Draw(rt, "hours")) * time.Hour)
				_, err := h.engine.ApplyRegen(ctx, "p")
				require.NoError(rt, err)
			} else {
				raw := rapid.IntRange(0, 500).Draw(rt, "raw")
				res, err := h.engine.DealDamage(ctx, "p", rapid.SampledFrom([]string{"a", "b", "nobody"}).Draw(rt, "who"), raw, i+1)
				require.NoError(rt, err)
				total += res.Dealt
				assert.GreaterOrEqual(rt, res.Phase, phase)
				phase = res.Phase
			}
			got := h.get(rt, "p")
			assert.GreaterOrEqual(rt, got.HP, 0)
			assert.LessOrEqual(rt, got.HP, got.HPMax)
		}
		sum, err := h.ledger.Sum(ctx, "p")
		require.NoError(rt, err)
		assert.Equal(rt, int64(total), sum)
	})
}

func TestEngage_CompletedShowsDefeated(t *testing.T) {
	h := newHarness(t)
	st := bounty("r")
	st.Kind = target.KindRaidBoss
	st.Name = "Hollow King"
	st.HP = 0
	st.Completed = true
	st.Active = false
	h.seed(t, st)
	eng, err := h.engine.Engage(context.Background(), "r", "a")
	require.NoError(t, err)
	assert.Equal(t, "The Hollow King has been defeated!", eng.Status)
	_, err = h.engine.Engage(context.Background(), "nope", "a")
	assert.True(t, errors.Is(err, target.ErrNotFound))
}

// Precondition: regenerator floor boss at 60/100 HP, regen stamped now.
// Postcondition: Small hits wear it down; status views inside one interval
// heal nothing; one 10% heal lands after a full interval.
func TestDealDamage_RegeneratorWearsDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	last := h.clock()
	st := bounty("hag")
	st.Kind = target.KindFloorBoss
	st.Name = "Cistern Hag"
	st.HP = 60
	st.Mechanics = []target.Mechanic{target.Regenerator}
	st.LastRegenAt = &last
	h.seed(t, st)

	for i := 1; i <= 4; i++ {
		res, err := h.engine.DealDamage(ctx, "hag", "a", 5, i)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Dealt)
		assert.Equal(t, 60-5*i, res.NewHP)
	}

	for i := 0; i < 3; i++ {
		_, err := h.engine.GetStatus(ctx, "hag")
		require.NoError(t, err)
	}
	_, err := h.engine.Engage(ctx, "hag", "b")
	require.NoError(t, err)
	assert.Equal(t, 40, h.get(t, "hag").HP)

	h.advance(8 * time.Hour)
	eng, err := h.engine.Engage(ctx, "hag", "a")
	require.NoError(t, err)
	assert.Equal(t, 10, eng.Healed)
	assert.Equal(t, 50, h.get(t, "hag").HP)

	res, err := h.engine.DealDamage(ctx, "hag", "a", 50, 5)
	require.NoError(t, err)
	assert.True(t, res.Dead)
}

// Precondition: splitting bounty with MaxActive 2 is hit below half HP.
// Postcondition: The split copy is unpooled. It leaves room for another
// bounty, stays off the board, and its death pays no pool rewards and
// spawns no successor.
func TestDealDamage_SplitChildIsUnpooled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("rk")
	st.Mechanics = []target.Mechanic{target.Splitting}
	h.seed(t, st)

	_, err := h.engine.DealDamage(ctx, "rk", "a", 55, 1)
	require.NoError(t, err)
	require.True(t, h.get(t, "rk").SplitSpawned)

	active, err := h.engine.ActiveTargets(ctx, target.KindBounty)
	require.NoError(t, err)
	require.Len(t, active, 2)
	var child *target.SharedTarget
	for _, c := range active {
		if c.ParentID == "rk" {
			child = c
		}
	}
	require.NotNil(t, child)
	assert.False(t, child.Pooled)

	_, err = h.engine.Activate(ctx, target.KindBounty, pool.ActivateConfig{
		Template: &target.Template{ID: "hound", Name: "Bone Hound", Kind: "bounty", HPMax: 40},
	})
	require.NoError(t, err, "split copy holds no capacity slot")

	board, err := h.engine.StatusBoard(ctx, target.KindBounty)
	require.NoError(t, err)
	assert.NotContains(t, board, "(Split)")

	res, err := h.engine.DealDamage(ctx, child.ID, "b", 1000, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Completion)
	assert.Empty(t, res.Completion.Awards)
	assert.Empty(t, res.Completion.ReplacementID)
	assert.Empty(t, res.Completion.ActivatedID)

	b, err := h.players.Get(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, b.XP)
	assert.Zero(t, b.Gold)

	all, err := h.targets.List(ctx, target.ListFilter{Kind: target.KindBounty})
	require.NoError(t, err)
	assert.Len(t, all, 3, "parent, split copy, and the activated hound only")
}

func TestDealDamage_SplitNeedsAdjacentRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := bounty("rk")
	st.RoomID = "sealed_vault"
	st.Mechanics = []target.Mechanic{target.Splitting}
	h.seed(t, st)

	res, err := h.engine.DealDamage(ctx, "rk", "a", 55, 1)
	require.NoError(t, err)
	assert.False(t, h.get(t, "rk").SplitSpawned)
	assert.NotContains(t, res.Messages, "Grave Rat King splits! A second form appears nearby.")
	all, err := h.targets.List(ctx, target.ListFilter{Kind: target.KindBounty})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// Precondition: two active bounties at MaxActive 2 and one queued bounty due today.
// Postcondition: Killing one activates the queued bounty.
func TestDealDamage_KillActivatesQueuedBounty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, bounty("a1"))
	h.seed(t, bounty("a2"))
	q := bounty("q1")
	q.Active = false
	q.AvailableFromDay = 1
	h.seed(t, q)

	res, err := h.engine.DealDamage(ctx, "a1", "a", 1000, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "q1", res.Completion.ActivatedID)
	assert.True(t, h.get(t, "q1").Active)
}

// Precondition: kills and fresh activations of one kind race each other.
// Postcondition: Pooled active targets never exceed MaxActive.
func TestCapacity_HoldsUnderConcurrentKillAndActivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2"} {
		st := bounty(id)
		st.HP, st.HPMax = 1, 1
		h.seed(t, st)
	}
	for i := 0; i < 30; i++ {
		q := bounty(fmt.Sprintf("q%02d", i))
		q.HP, q.HPMax = 1, 1
		q.Active = false
		q.AvailableFromDay = 1
		q.CreatedAt = epochStart.Add(time.Duration(i) * time.Minute)
		h.seed(t, q)
	}

	pooledActive := func() []*target.SharedTarget {
		ts, err := h.engine.ActiveTargets(ctx, target.KindBounty)
		require.NoError(t, err)
		var out []*target.SharedTarget
		for _, st := range ts {
			if st.Pooled {
				out = append(out, st)
			}
		}
		return out
	}

	for round := 0; round < 25; round++ {
		live := pooledActive()
		if len(live) == 0 {
			break
		}
		victim := live[0].ID

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.engine.DealDamage(ctx, victim, "a", 10, 1); err != nil {
				t.Errorf("DealDamage: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := h.engine.Activate(ctx, target.KindBounty, pool.ActivateConfig{
				Template: &target.Template{ID: "hound", Name: "Bone Hound", Kind: "bounty", HPMax: 1},
			})
			if err != nil && !errors.Is(err, pool.ErrAtCapacity) {
				t.Errorf("Activate: %v", err)
			}
		}()
		wg.Wait()

		assert.LessOrEqual(t, len(pooledActive()), 2, "round %d", round)
	}
}

type failingCreate struct {
	target.Store
	kind target.Kind
}

func (f failingCreate) Create(ctx context.Context, t *target.SharedTarget) error {
	if t.Kind == f.kind {
		return errors.New("disk full")
	}
	return f.Store.Create(ctx, t)
}

func TestActivate_FailedCreateLeavesNoMinions(t *testing.T) {
	h := newHarnessWith(t, func(s target.Store) target.Store {
		return failingCreate{Store: s, kind: target.KindBreachEmergence}
	})
	_, err := h.engine.Activate(context.Background(), target.KindBreachEmergence, pool.ActivateConfig{
		Template: &target.Template{ID: "breach", Name: "Breach Creature", Kind: "breach_emergence", HPMax: 1, Floor: 2},
	})
	require.Error(t, err)
	assert.False(t, h.minions.AliveInRoom("b_west"))
	assert.False(t, h.minions.AliveInRoom("b_east"))
	for _, msg := range h.broadcasts() {
		assert.NotContains(t, msg, "Minions stir")
	}
}
