// Package gameserver assembles the shared-target engine from configuration,
// content, and storage, and runs it as a set of lifecycle services.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/broadcast"
	"github.com/zvx-echo6/mmud-sub000/internal/game/completion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
	"github.com/zvx-echo6/mmud-sub000/internal/game/epoch"
	"github.com/zvx-echo6/mmud-sub000/internal/game/ledger"
	"github.com/zvx-echo6/mmud-sub000/internal/game/mechanic"
	"github.com/zvx-echo6/mmud-sub000/internal/game/minion"
	"github.com/zvx-echo6/mmud-sub000/internal/game/pool"
	"github.com/zvx-echo6/mmud-sub000/internal/game/regen"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
	"github.com/zvx-echo6/mmud-sub000/internal/game/world"
	"github.com/zvx-echo6/mmud-sub000/internal/observability"
	"github.com/zvx-echo6/mmud-sub000/internal/scripting"
	"github.com/zvx-echo6/mmud-sub000/internal/server"
)

// HealthService is the gRPC health service name reported for the engine.
const HealthService = "mmud.pool"

// DefaultTaskInterval is how often maintenance tasks run when Options leaves it unset.
const DefaultTaskInterval = time.Minute

// globalScriptDir is the subdirectory of the script root loaded into the global VM.
const globalScriptDir = "global"

// Options tune a Server beyond what configuration carries.
type Options struct {
	// ActivePlayers scales raid boss HP at activation.
	ActivePlayers int
	// TaskInterval defaults to DefaultTaskInterval.
	TaskInterval time.Duration
	// Source defaults to a logged crypto source.
	Source dice.Source
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server owns the engine and the services that keep it running.
type Server struct {
	cfg           config.Config
	content       *Content
	store         *Storage
	logger        *zap.Logger
	now           func() time.Time
	activePlayers int

	Engine   *pool.Engine
	Hub      *broadcast.Hub
	World    *world.Manager
	Minions  *minion.Manager
	Calendar *epoch.Calendar
	Tasks    *TaskManager

	days    *epoch.Ticker
	scripts *scripting.Manager
	health  *health.Server
	grpc    *grpc.Server
}

// New wires an engine over store using cfg and content.
//
// Precondition: cfg must have passed Validate; content, store, and logger must be non-nil.
// Postcondition: Returns a Server ready for Bootstrap, or an error.
func New(cfg config.Config, content *Content, store *Storage, logger *zap.Logger, opts Options) (*Server, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	src := opts.Source
	if src == nil {
		src = dice.NewLoggedSource(dice.NewCryptoSource(), observability.Component(logger, cfg.Logging, "dice"))
	}
	interval := opts.TaskInterval
	if interval <= 0 {
		interval = DefaultTaskInterval
	}

	worldMgr, err := world.NewManager(content.Floors, src)
	if err != nil {
		return nil, fmt.Errorf("creating world manager: %w", err)
	}
	start, err := cfg.Engine.EpochStartTime()
	if err != nil {
		return nil, err
	}
	cal := epoch.NewCalendar(start, cfg.Engine.DayLength)
	hub := broadcast.NewHub(cfg.Engine.MessageLimit, observability.Component(logger, cfg.Logging, "broadcast"))
	minions := minion.NewManager()

	engineLog := observability.Component(logger, cfg.Logging, "pool")
	l := ledger.New(store.Ledger, engineLog)
	coord := completion.NewCoordinator(store.Targets, l, store.Players, hub, cal, cfg.Engine,
		observability.Component(logger, cfg.Logging, "completion"))
	coord.SetClock(now)

	s := &Server{
		cfg:           cfg,
		content:       content,
		store:         store,
		logger:        logger,
		now:           now,
		activePlayers: opts.ActivePlayers,
		Hub:           hub,
		World:         worldMgr,
		Minions:       minions,
		Calendar:      cal,
	}

	if cfg.GameServer.ScriptDir != "" {
		mgr, err := loadScripts(cfg.GameServer.ScriptDir, src, observability.Component(logger, cfg.Logging, "scripting"))
		if err != nil {
			return nil, err
		}
		s.scripts = mgr
		coord.SetNarrator(scripting.NewNarrator(mgr))
	}

	s.Engine, err = pool.NewEngine(pool.Deps{
		Targets:    store.Targets,
		Ledger:     l,
		Players:    store.Players,
		Announcer:  hub,
		Calendar:   cal,
		World:      worldMgr,
		Minions:    minions,
		Mechanics:  mechanic.NewEngine(observability.Component(logger, cfg.Logging, "mechanic")),
		Regen:      regen.NewScheduler(observability.Component(logger, cfg.Logging, "regen")),
		Completion: coord,
		Source:     src,
		Config:     cfg.Engine,
		Logger:     engineLog,
		Now:        now,
	})
	if err != nil {
		s.closeScripts()
		return nil, err
	}

	s.days = epoch.NewTicker(cal, interval, now)
	s.Tasks = NewTaskManager(interval, observability.Component(logger, cfg.Logging, "tasks"))
	s.Tasks.Register("epoch", s.pollDay)
	s.Tasks.Register("health", s.probe)

	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	s.grpc = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	return s, nil
}

// loadScripts loads root/global into the global VM and root/<kind> into a
// per-kind scope, skipping directories that do not exist.
func loadScripts(root string, src dice.Source, logger *zap.Logger) (*scripting.Manager, error) {
	mgr := scripting.NewManager(src, logger)
	if dir := filepath.Join(root, globalScriptDir); isDir(dir) {
		if err := mgr.LoadGlobal(dir, scripting.DefaultInstructionLimit); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("loading global scripts: %w", err)
		}
		logger.Info("global scripts loaded", zap.String("dir", dir))
	}
	for _, kind := range target.Kinds {
		dir := filepath.Join(root, string(kind))
		if !isDir(dir) {
			continue
		}
		if err := mgr.LoadScope(string(kind), dir, scripting.DefaultInstructionLimit); err != nil {
			mgr.Close()
			return nil, fmt.Errorf("loading %s scripts: %w", kind, err)
		}
		logger.Info("kind scripts loaded", zap.String("kind", string(kind)), zap.String("dir", dir))
	}
	return mgr, nil
}

// Bootstrap brings the target pool in line with content. Bounty templates not
// already stored are queued; other templates due today are activated when no
// incomplete target of the same name exists. Queued targets due today are then
// activated.
//
// Postcondition: Calling Bootstrap again with the same content creates nothing new.
func (s *Server) Bootstrap(ctx context.Context) error {
	known, err := s.knownNames(ctx)
	if err != nil {
		return err
	}
	queued := 0
	for _, tmpl := range s.content.ByKind(target.KindBounty) {
		if known[tmpl.Name] {
			continue
		}
		if _, err := s.Engine.Enqueue(ctx, tmpl); err != nil {
			return fmt.Errorf("queueing bounty %q: %w", tmpl.ID, err)
		}
		known[tmpl.Name] = true
		queued++
	}
	s.logger.Info("bounties queued", zap.Int("count", queued))

	if err := s.activateDue(ctx, known); err != nil {
		return err
	}
	activated, err := s.Engine.OnNewDay(ctx)
	if err != nil {
		return fmt.Errorf("activating queued targets: %w", err)
	}
	s.logger.Info("pool bootstrapped",
		zap.Int("day", s.Calendar.DayNumber(s.now())),
		zap.Int("activated", len(activated)),
	)
	return nil
}

// knownNames returns the names of every incomplete stored target.
func (s *Server) knownNames(ctx context.Context) (map[string]bool, error) {
	no := false
	existing, err := s.store.Targets.List(ctx, target.ListFilter{Completed: &no})
	if err != nil {
		return nil, fmt.Errorf("listing stored targets: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.Name] = true
	}
	return known, nil
}

// activateDue activates non-bounty templates whose day has arrived.
func (s *Server) activateDue(ctx context.Context, known map[string]bool) error {
	day := s.Calendar.DayNumber(s.now())
	for _, tmpl := range s.content.Templates {
		kind, err := target.ParseKind(tmpl.Kind)
		if err != nil {
			return err
		}
		if kind == target.KindBounty || known[tmpl.Name] || tmpl.AvailableFromDay > day {
			continue
		}
		_, err = s.Engine.Activate(ctx, kind, pool.ActivateConfig{
			Template:      tmpl,
			ActivePlayers: s.activePlayers,
		})
		if errors.Is(err, pool.ErrAtCapacity) {
			s.logger.Debug("skipping activation at capacity",
				zap.String("template", tmpl.ID),
				zap.String("kind", string(kind)),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("activating %q: %w", tmpl.ID, err)
		}
		known[tmpl.Name] = true
	}
	return nil
}

// pollDay runs day-rollover work when the epoch day has changed.
func (s *Server) pollDay(ctx context.Context) {
	if !s.days.Poll() {
		return
	}
	day := s.days.CurrentDay()
	s.logger.Info("epoch day rollover", zap.Int("day", day))
	known, err := s.knownNames(ctx)
	if err == nil {
		err = s.activateDue(ctx, known)
	}
	if err != nil {
		s.logger.Warn("activating due targets", zap.Int("day", day), zap.Error(err))
	}
	if _, err := s.Engine.OnNewDay(ctx); err != nil {
		s.logger.Warn("activating queued targets", zap.Int("day", day), zap.Error(err))
	}
}

// probe mirrors storage health into the gRPC health service.
func (s *Server) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Health(ctx); err != nil {
		s.logger.Warn("storage health check failed",
			zap.String("driver", s.store.Driver),
			zap.Error(err),
		)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
}

// GRPC returns the gRPC server carrying the health and reflection services.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Register adds the server's services to lc. Storage is registered first so it
// is closed last.
func (s *Server) Register(lc *server.Lifecycle) {
	lc.Add("storage", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: func(context.Context) {
			s.closeScripts()
			if err := s.store.Close(); err != nil {
				s.logger.Warn("closing storage", zap.Error(err))
			}
		},
	})
	lc.Add("tasks", &server.FuncService{
		StartFn: s.Tasks.Run,
	})
	lc.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", s.cfg.GameServer.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", s.cfg.GameServer.Addr(), err)
			}
			s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			return s.grpc.Serve(lis)
		},
		StopFn: func(ctx context.Context) {
			s.health.Shutdown()
			done := make(chan struct{})
			go func() {
				s.grpc.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				s.grpc.Stop()
			}
		},
	})
}

func (s *Server) closeScripts() {
	if s.scripts != nil {
		s.scripts.Close()
		s.scripts = nil
	}
}
