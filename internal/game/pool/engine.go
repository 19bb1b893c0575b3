// Package pool is the shared-target engine: the single entry point through which
// participants damage, inspect, and activate server-wide targets.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/completion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/mechanic"
	"github.com/zvx-echo6/mmud-sub000/internal/game/minion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/regen"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
)

var (
	// ErrInactive is returned when acting on a queued target that has not been activated.
	ErrInactive = errors.New("target is not active")
	// ErrLockedOut is returned by Engage while the participant's lockout is running.
	ErrLockedOut = errors.New("participant is locked out of target")
)

// World answers dungeon layout questions.
type World interface {
	SecretsFound(floor int) int
	RandomRoom(floor int, exclude string) (string, bool)
	AdjacentRoom(roomID string) (string, bool)
	BreachRooms() []string
	CentralBreachRoom() (string, bool)
}

// Minions tracks the lesser creatures guarding targets.
type Minions interface {
	AliveInRoom(roomID string) bool
	Fill(tmpl *minion.Template, roomID, ownerID string, want int) (int, error)
	Populate(tmpl *minion.Template, rooms []string, ownerID string) (int, error)
	RemoveOwned(ownerID string) int
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Targets    target.Store
	Ledger     *ledger.Ledger
	Players    player.Repository
	Announcer  completion.Announcer
	Calendar   completion.Calendar
	World      World
	Minions    Minions
	Mechanics  *mechanic.Engine
	Regen      *regen.Scheduler
	Completion *completion.Coordinator
	Source     dice.Source
	Config     config.EngineConfig
	Logger     *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) validate() error {
	var missing []string
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("Targets", d.Targets != nil)
	check("Ledger", d.Ledger != nil)
	check("Players", d.Players != nil)
	check("Announcer", d.Announcer != nil)
	check("Calendar", d.Calendar != nil)
	check("World", d.World != nil)
	check("Minions", d.Minions != nil)
	check("Mechanics", d.Mechanics != nil)
	check("Regen", d.Regen != nil)
	check("Completion", d.Completion != nil)
	check("Source", d.Source != nil)
	check("Logger", d.Logger != nil)
	if len(missing) > 0 {
		return fmt.Errorf("pool: missing dependencies %v", missing)
	}
	return nil
}

// Engine serializes all work on a target behind a per-target lock and writes
// through the store's version check.
type Engine struct {
	targets    target.Store
	ledger     *ledger.Ledger
	players    player.Repository
	announcer  completion.Announcer
	calendar   completion.Calendar
	world      World
	minions    Minions
	mechanics  *mechanic.Engine
	regen      *regen.Scheduler
	completion *completion.Coordinator
	src        dice.Source
	cfg        config.EngineConfig
	logger     *zap.Logger
	now        func() time.Time

	locks keyedMutex
	// queueMu serializes activation decisions across targets of one engine.
	queueMu sync.Mutex
}

// NewEngine creates an Engine.
//
// Postcondition: Returns an error naming every missing collaborator.
func NewEngine(d Deps) (*Engine, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		targets:    d.Targets,
		ledger:     d.Ledger,
		players:    d.Players,
		announcer:  d.Announcer,
		calendar:   d.Calendar,
		world:      d.World,
		minions:    d.Minions,
		mechanics:  d.Mechanics,
		regen:      d.Regen,
		completion: d.Completion,
		src:        d.Source,
		cfg:        d.Config,
		logger:     d.Logger,
		now:        now,
		locks:      keyedMutex{locks: make(map[string]*sync.Mutex)},
	}, nil
}

// keyedMutex hands out one mutex per target ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// load fetches a target, wrapping store errors.
func (e *Engine) load(ctx context.Context, id string) (*target.SharedTarget, error) {
	t, err := e.targets.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", id, err)
	}
	return t, nil
}

// save writes t through the version check.
func (e *Engine) save(ctx context.Context, t *target.SharedTarget) error {
	if err := e.targets.Update(ctx, t); err != nil {
		return fmt.Errorf("saving target %s: %w", t.ID, err)
	}
	return nil
}

// attacker returns the participant's stats, or placeholder stats when they cannot be read.
func (e *Engine) attacker(ctx context.Context, id string) player.Stats {
	s, err := e.players.Stats(ctx, id)
	if err != nil {
		e.logger.Warn("player stats unavailable; using defaults",
			zap.String("player", id),
			zap.Error(err),
		)
		return player.Fallback(id)
	}
	return s
}

func (e *Engine) environment(ctx context.Context, t *target.SharedTarget, now time.Time) mechanic.Environment {
	contributors, err := e.ledger.Contributors(ctx, t.ID)
	if err != nil {
		e.logger.Warn("counting contributors", zap.String("target", t.ID), zap.Error(err))
	}
	return mechanic.Environment{
		DayNumber:    e.calendar.DayNumber(now),
		SecretsFound: e.world.SecretsFound(t.Floor),
		Contributors: contributors,
		MinionAlive:  t.RoomID != "" && e.minions.AliveInRoom(t.RoomID),
	}
}

// policy returns the configured policy for t's kind.
func (e *Engine) policy(kind target.Kind) config.KindPolicy {
	p, _ := e.cfg.Policy(string(kind))
	return p
}
