// Package storetest is a conformance suite shared by every storage backend.
// Each backend's tests call the Run* functions with a constructor for a fresh,
// empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

// Base is a fixed, millisecond-aligned instant every backend can round-trip.
var Base = time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

// Stores is one backend's set of stores sharing a database.
type Stores struct {
	Targets target.Store
	Ledger  ledger.Store
	Players player.Registry
}

// Factory returns fresh, empty stores for one subtest.
type Factory func(t *testing.T) Stores

// FullTarget returns a target with every field set to a non-zero value.
func FullTarget(id string) *target.SharedTarget {
	regen := Base.Add(-2 * time.Hour)
	burst := Base.Add(-3 * time.Hour)
	spawn := Base.Add(-4 * time.Hour)
	return &target.SharedTarget{
		ID:                 id,
		Kind:               target.KindRaidBoss,
		Name:               "Gorgath the Hollow",
		HP:                 3200,
		HPMax:              4800,
		Pow:                14,
		Def:                9,
		Spd:                6,
		XPReward:           900,
		GoldReward:         450,
		Mechanics:          []target.Mechanic{target.Regenerator, target.ArmorPhase},
		Phase:              2,
		RegenRate:          0.03,
		RegenIntervalHours: 8,
		LastRegenAt:        &regen,
		LastBurstAt:        &burst,
		LastMinionSpawnAt:  &spawn,
		Floor:              3,
		RoomID:             "f3_throne",
		Active:             true,
		HalfwayAnnounced:   true,
		SplitSpawned:       true,
		ParentID:           "parent-1",
		Pooled:             true,
		AvailableFromDay:   4,
		CreatedAt:          Base,
	}
}

func sameTime(t *testing.T, want, got *time.Time, field string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, field)
		return
	}
	require.NotNil(t, got, field)
	assert.True(t, want.Equal(*got), "%s: want %s, got %s", field, want, got)
}

// RunTargetStore exercises target.Store semantics.
func RunTargetStore(t *testing.T, newStores Factory) {
	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		want := FullTarget("t1")
		require.NoError(t, s.Create(ctx, want))
		assert.Equal(t, int64(1), want.Version)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.HP, got.HP)
		assert.Equal(t, want.HPMax, got.HPMax)
		assert.Equal(t, []int{want.Pow, want.Def, want.Spd}, []int{got.Pow, got.Def, got.Spd})
		assert.Equal(t, want.XPReward, got.XPReward)
		assert.Equal(t, want.GoldReward, got.GoldReward)
		assert.Equal(t, want.Mechanics, got.Mechanics)
		assert.Equal(t, want.Phase, got.Phase)
		assert.InDelta(t, want.RegenRate, got.RegenRate, 1e-9)
		assert.InDelta(t, want.RegenIntervalHours, got.RegenIntervalHours, 1e-9)
		sameTime(t, want.LastRegenAt, got.LastRegenAt, "LastRegenAt")
		sameTime(t, want.LastBurstAt, got.LastBurstAt, "LastBurstAt")
		sameTime(t, want.LastMinionSpawnAt, got.LastMinionSpawnAt, "LastMinionSpawnAt")
		sameTime(t, nil, got.CompletedAt, "CompletedAt")
		assert.Equal(t, want.Floor, got.Floor)
		assert.Equal(t, want.RoomID, got.RoomID)
		assert.Equal(t, want.Active, got.Active)
		assert.False(t, got.Completed)
		assert.Equal(t, want.HalfwayAnnounced, got.HalfwayAnnounced)
		assert.Equal(t, want.SplitSpawned, got.SplitSpawned)
		assert.Equal(t, want.ParentID, got.ParentID)
		assert.Equal(t, want.Pooled, got.Pooled)
		assert.Equal(t, want.AvailableFromDay, got.AvailableFromDay)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("EmptyMechanics", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		require.NoError(t, s.Create(ctx, &target.SharedTarget{ID: "plain", Kind: target.KindFloorBoss, Name: "Warden", HP: 5, HPMax: 5, Phase: 1, CreatedAt: Base}))
		got, err := s.Get(ctx, "plain")
		require.NoError(t, err)
		assert.Empty(t, got.Mechanics)
		assert.Nil(t, got.LastRegenAt)
	})

	t.Run("DuplicateCreateFails", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		require.NoError(t, s.Create(ctx, FullTarget("t1")))
		assert.Error(t, s.Create(ctx, FullTarget("t1")))
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		_, err := s.Get(ctx, "ghost")
		assert.True(t, errors.Is(err, target.ErrNotFound))
		ghost := FullTarget("ghost")
		ghost.Version = 1
		assert.True(t, errors.Is(s.Update(ctx, ghost), target.ErrNotFound))
	})

	t.Run("VersionCAS", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		require.NoError(t, s.Create(ctx, FullTarget("t1")))

		a, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		b, err := s.Get(ctx, "t1")
		require.NoError(t, err)

		a.HP = 100
		done := Base.Add(time.Minute)
		a.Completed = true
		a.CompletedAt = &done
		require.NoError(t, s.Update(ctx, a))
		assert.Equal(t, int64(2), a.Version)

		b.HP = 200
		assert.True(t, errors.Is(s.Update(ctx, b), target.ErrVersionConflict))

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 100, got.HP)
		assert.True(t, got.Completed)
		sameTime(t, &done, got.CompletedAt, "CompletedAt")
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("ConcurrentUpdatesExactlyOneWins", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		require.NoError(t, s.Create(ctx, FullTarget("t1")))

		const n = 8
		snaps := make([]*target.SharedTarget, n)
		for i := range snaps {
			got, err := s.Get(ctx, "t1")
			require.NoError(t, err)
			got.HP = i
			snaps[i] = got
		}
		var wins atomic.Int32
		var wg sync.WaitGroup
		for _, snap := range snaps {
			wg.Add(1)
			go func(st *target.SharedTarget) {
				defer wg.Done()
				if s.Update(ctx, st) == nil {
					wins.Add(1)
				}
			}(snap)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("ListFilterAndOrder", func(t *testing.T) {
		ctx := context.Background()
		s := newStores(t).Targets
		mk := func(id string, kind target.Kind, active, completed bool, at time.Time) {
			st := &target.SharedTarget{ID: id, Kind: kind, Name: id, HP: 1, HPMax: 1, Phase: 1,
				Active: active, Completed: completed, CreatedAt: at}
			require.NoError(t, s.Create(ctx, st))
		}
		mk("b2", target.KindBounty, true, false, Base.Add(time.Hour))
		mk("b1", target.KindBounty, true, false, Base)
		mk("b0", target.KindBounty, true, false, Base)
		mk("q1", target.KindBounty, false, false, Base)
		mk("d1", target.KindBounty, false, true, Base)
		mk("r1", target.KindRaidBoss, true, false, Base)

		yes, no := true, false
		got, err := s.List(ctx, target.ListFilter{Kind: target.KindBounty, Active: &yes})
		require.NoError(t, err)
		assert.Equal(t, []string{"b0", "b1", "b2"}, ids(got))

		got, err = s.List(ctx, target.ListFilter{Kind: target.KindBounty, Active: &no, Completed: &no})
		require.NoError(t, err)
		assert.Equal(t, []string{"q1"}, ids(got))

		got, err = s.List(ctx, target.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, got, 6)
	})
}

func ids(ts []*target.SharedTarget) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func seedTarget(t *testing.T, s target.Store, id string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &target.SharedTarget{
		ID: id, Kind: target.KindBounty, Name: id, HP: 10, HPMax: 10, Phase: 1, CreatedAt: Base,
	}))
}

// RunLedgerStore exercises ledger.Store semantics. Targets are created first
// because SQL backends enforce the foreign key.
func RunLedgerStore(t *testing.T, newStores Factory) {
	t.Run("Accumulates", func(t *testing.T) {
		ctx := context.Background()
		st := newStores(t)
		seedTarget(t, st.Targets, "t1")
		seedTarget(t, st.Targets, "t2")

		require.NoError(t, st.Ledger.AddContribution(ctx, "t1", "a", 10, Base))
		require.NoError(t, st.Ledger.AddContribution(ctx, "t1", "a", 5, Base.Add(time.Minute)))
		require.NoError(t, st.Ledger.AddContribution(ctx, "t1", "b", 7, Base))
		require.NoError(t, st.Ledger.AddContribution(ctx, "t2", "a", 99, Base))

		cs, err := st.Ledger.Contributions(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, cs, 2)
		byID := map[string]ledger.Contribution{}
		for _, c := range cs {
			byID[c.ParticipantID] = c
		}
		assert.Equal(t, int64(15), byID["a"].Damage)
		assert.True(t, Base.Add(time.Minute).Equal(byID["a"].LastEngagedAt))
		assert.Equal(t, int64(7), byID["b"].Damage)
	})

	t.Run("EmptyTarget", func(t *testing.T) {
		st := newStores(t)
		seedTarget(t, st.Targets, "t1")
		cs, err := st.Ledger.Contributions(context.Background(), "t1")
		require.NoError(t, err)
		assert.Empty(t, cs)
	})

	t.Run("Lockout", func(t *testing.T) {
		ctx := context.Background()
		st := newStores(t)
		seedTarget(t, st.Targets, "t1")

		until, err := st.Ledger.Lockout(ctx, "t1", "a")
		require.NoError(t, err)
		assert.Nil(t, until)

		when := Base.Add(24 * time.Hour)
		require.NoError(t, st.Ledger.SetLockout(ctx, "t1", "a", when))
		until, err = st.Ledger.Lockout(ctx, "t1", "a")
		require.NoError(t, err)
		sameTime(t, &when, until, "lockout")

		// A lockout without damage creates a zero-damage record.
		cs, err := st.Ledger.Contributions(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, cs, 1)
		assert.Equal(t, int64(0), cs[0].Damage)

		require.NoError(t, st.Ledger.AddContribution(ctx, "t1", "a", 3, Base))
		until, err = st.Ledger.Lockout(ctx, "t1", "a")
		require.NoError(t, err)
		sameTime(t, &when, until, "lockout after damage")
	})

	t.Run("ConcurrentAddsAreNotLost", func(t *testing.T) {
		ctx := context.Background()
		st := newStores(t)
		seedTarget(t, st.Targets, "t1")

		const workers, each = 4, 10
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < each; i++ {
					assert.NoError(t, st.Ledger.AddContribution(ctx, "t1", fmt.Sprintf("p%d", w%2), 1, Base))
				}
			}(w)
		}
		wg.Wait()

		cs, err := st.Ledger.Contributions(ctx, "t1")
		require.NoError(t, err)
		var total int64
		for _, c := range cs {
			total += c.Damage
		}
		assert.Equal(t, int64(workers*each), total)
	})
}

// RunPlayerRegistry exercises player.Registry semantics.
func RunPlayerRegistry(t *testing.T, newStores Factory) {
	t.Run("UpsertAndStats", func(t *testing.T) {
		ctx := context.Background()
		r := newStores(t).Players
		require.NoError(t, r.Upsert(ctx, &player.Character{
			ID: "p1", Name: "Ash", Level: 4, Pow: 9, Def: 5, Spd: 7, HP: 30, HPMax: 40, Floor: 2,
			CreatedAt: Base, UpdatedAt: Base,
		}))
		s, err := r.Stats(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, player.Stats{ID: "p1", Name: "Ash", Level: 4, Pow: 9, Def: 5, Spd: 7, HP: 30, HPMax: 40, Floor: 2}, s)
	})

	t.Run("AwardsAccumulateAndSurviveUpsert", func(t *testing.T) {
		ctx := context.Background()
		r := newStores(t).Players
		require.NoError(t, r.Upsert(ctx, &player.Character{ID: "p1", Name: "Ash", Level: 1, HPMax: 40, CreatedAt: Base, UpdatedAt: Base}))
		require.NoError(t, r.AwardXP(ctx, "p1", 100))
		require.NoError(t, r.AwardXP(ctx, "p1", 20))
		require.NoError(t, r.AwardGold(ctx, "p1", 60))

		require.NoError(t, r.Upsert(ctx, &player.Character{ID: "p1", Name: "Ash", Level: 2, HPMax: 45, CreatedAt: Base, UpdatedAt: Base}))
		c, err := r.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(120), c.XP)
		assert.Equal(t, int64(60), c.Gold)
		assert.Equal(t, 2, c.Level)
		assert.Equal(t, 45, c.HPMax)
	})

	t.Run("Missing", func(t *testing.T) {
		ctx := context.Background()
		r := newStores(t).Players
		_, err := r.Stats(ctx, "ghost")
		assert.True(t, errors.Is(err, player.ErrNotFound))
		_, err = r.Get(ctx, "ghost")
		assert.True(t, errors.Is(err, player.ErrNotFound))
		assert.True(t, errors.Is(r.AwardXP(ctx, "ghost", 1), player.ErrNotFound))
		assert.True(t, errors.Is(r.AwardGold(ctx, "ghost", 1), player.ErrNotFound))
	})

	t.Run("NegativeAwardRejected", func(t *testing.T) {
		ctx := context.Background()
		r := newStores(t).Players
		require.NoError(t, r.Upsert(ctx, &player.Character{ID: "p1", Name: "Ash", CreatedAt: Base, UpdatedAt: Base}))
		assert.Error(t, r.AwardXP(ctx, "p1", -1))
		assert.Error(t, r.AwardGold(ctx, "p1", -1))
	})
}

// RunAll runs every suite.
func RunAll(t *testing.T, newStores Factory) {
	t.Run("Targets", func(t *testing.T) { RunTargetStore(t, newStores) })
	t.Run("Ledger", func(t *testing.T) { RunLedgerStore(t, newStores) })
	t.Run("Players", func(t *testing.T) { RunPlayerRegistry(t, newStores) })
}
