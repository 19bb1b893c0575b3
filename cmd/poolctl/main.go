// Package main provides poolctl, an operator CLI that drives the shared-target
// engine directly: list boards, inspect targets, seed characters, and run fights.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zvx-echo6/mmud-sub000/internal/config"
	"github.com/zvx-echo6/mmud-sub000/internal/game/combat"
	"github.com/zvx-echo6/mmud-sub000/internal/game/dice"
	"github.com/zvx-echo6/mmud-sub000/internal/game/player"
	"github.com/zvx-echo6/mmud-sub000/internal/game/target"
	"github.com/zvx-echo6/mmud-sub000/internal/gameserver"
	"github.com/zvx-echo6/mmud-sub000/internal/observability"
)

// options are the parsed command-line flags.
type options struct {
	action        string
	kind          string
	target        string
	player        string
	name          string
	level         int
	pow, def, spd int
	hp            int
	rounds        int
	activePlayers int
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	contentDir := flag.String("content", "", "content root; overrides server.content_dir")
	var o options
	flag.StringVar(&o.action, "action", "board", "one of: board, status, player, fight")
	flag.StringVar(&o.kind, "kind", "", "target kind for board (default: every kind)")
	flag.StringVar(&o.target, "target", "", "target ID or name for status and fight")
	flag.StringVar(&o.player, "player", "", "player ID for player and fight")
	flag.StringVar(&o.name, "name", "", "display name for player")
	flag.IntVar(&o.level, "level", 1, "level for player")
	flag.IntVar(&o.pow, "pow", 5, "POW for player")
	flag.IntVar(&o.def, "def", 3, "DEF for player")
	flag.IntVar(&o.spd, "spd", 3, "SPD for player")
	flag.IntVar(&o.hp, "hp", player.DefaultHPMax, "max HP for player")
	flag.IntVar(&o.rounds, "rounds", 10, "maximum rounds for fight")
	flag.IntVar(&o.activePlayers, "active-players", 1, "active player count used to scale raid boss HP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *contentDir != "" {
		cfg.Server.ContentDir = *contentDir
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, os.Stdout, cfg, o, logger, nil); err != nil {
		log.Fatalf("%s: %v", o.action, err)
	}
	fmt.Fprintf(os.Stdout, "[%s]\n", time.Since(start))
}

// run executes one action against a bootstrapped engine and writes the result to w.
// A nil src uses the server's default source.
func run(ctx context.Context, w io.Writer, cfg config.Config, o options, logger *zap.Logger, src dice.Source) error {
	content, err := gameserver.LoadContent(cfg.Server.ContentDir)
	if err != nil {
		return err
	}
	store, err := gameserver.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := gameserver.New(cfg, content, store, logger, gameserver.Options{
		ActivePlayers: o.activePlayers,
		Source:        src,
	})
	if err != nil {
		return err
	}
	if err := srv.Bootstrap(ctx); err != nil {
		return err
	}

	switch o.action {
	case "board":
		err = board(ctx, w, srv, o.kind)
	case "status":
		err = status(ctx, w, srv, store, o.target)
	case "player":
		err = seedPlayer(ctx, w, store, o)
	case "fight":
		err = fight(ctx, w, srv, store, o, src)
	default:
		err = fmt.Errorf("unknown action %q", o.action)
	}
	if err != nil {
		return err
	}

	history := srv.Hub.History(0)
	if len(history) > 0 {
		fmt.Fprintln(w, "-- broadcasts --")
		for _, m := range history {
			fmt.Fprintf(w, "[%s] %s\n", m.Tier, m.Text)
		}
	}
	return nil
}

func board(ctx context.Context, w io.Writer, srv *gameserver.Server, kind string) error {
	kinds := target.Kinds
	if kind != "" {
		k, err := target.ParseKind(kind)
		if err != nil {
			return err
		}
		kinds = []target.Kind{k}
	}
	for _, k := range kinds {
		text, err := srv.Engine.StatusBoard(ctx, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "== %s ==\n%s\n", k, text)
	}
	return nil
}

// resolveTarget matches ref against IDs first, then incomplete target names.
func resolveTarget(ctx context.Context, store *gameserver.Storage, ref string) (*target.SharedTarget, error) {
	if ref == "" {
		return nil, errors.New("-target is required")
	}
	t, err := store.Targets.Get(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, target.ErrNotFound) {
		return nil, err
	}
	no := false
	live, err := store.Targets.List(ctx, target.ListFilter{Completed: &no})
	if err != nil {
		return nil, err
	}
	for _, t := range live {
		if strings.EqualFold(t.Name, ref) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("target %q: %w", ref, target.ErrNotFound)
}

func status(ctx context.Context, w io.Writer, srv *gameserver.Server, store *gameserver.Storage, ref string) error {
	t, err := resolveTarget(ctx, store, ref)
	if err != nil {
		return err
	}
	line, err := srv.Engine.GetStatus(ctx, t.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s  [%s %s phase %d]\n", line, t.ID, t.Kind, t.Phase)
	return nil
}

func seedPlayer(ctx context.Context, w io.Writer, store *gameserver.Storage, o options) error {
	if o.player == "" {
		return errors.New("-player is required")
	}
	name := o.name
	if name == "" {
		name = o.player
	}
	c := &player.Character{
		ID: o.player, Name: name, Level: o.level,
		Pow: o.pow, Def: o.def, Spd: o.spd,
		HP: o.hp, HPMax: o.hp, Floor: 1,
	}
	if err := store.Players.Upsert(ctx, c); err != nil {
		return err
	}
	saved, err := store.Players.Get(ctx, o.player)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%s) L%d POW %d DEF %d SPD %d HP %d/%d XP %d gold %d\n",
		saved.Name, saved.ID, saved.Level, saved.Pow, saved.Def, saved.Spd,
		saved.HP, saved.HPMax, saved.XP, saved.Gold)
	return nil
}

// fighter loads the player's character, creating it from o when missing.
func fighter(ctx context.Context, store *gameserver.Storage, o options) (*player.Character, error) {
	c, err := store.Players.Get(ctx, o.player)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, player.ErrNotFound) {
		return nil, err
	}
	if err := seedPlayer(ctx, io.Discard, store, o); err != nil {
		return nil, err
	}
	return store.Players.Get(ctx, o.player)
}

func fight(ctx context.Context, w io.Writer, srv *gameserver.Server, store *gameserver.Storage, o options, src dice.Source) error {
	if o.player == "" {
		return errors.New("-player is required")
	}
	if src == nil {
		src = dice.NewCryptoSource()
	}
	t, err := resolveTarget(ctx, store, o.target)
	if err != nil {
		return err
	}
	c, err := fighter(ctx, store, o)
	if err != nil {
		return err
	}

	eng, err := srv.Engine.Engage(ctx, t.ID, c.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, eng.Status)
	for _, m := range eng.Messages {
		fmt.Fprintln(w, "  "+m)
	}

	me := &combat.Combatant{
		ID: c.ID, Kind: combat.KindPlayer, Name: c.Name,
		Pow: c.Pow, Def: c.Def, Spd: c.Spd,
		MaxHP: c.HPMax, CurrentHP: c.HPMax,
	}
	for round := 1; round <= o.rounds; round++ {
		// Re-read each round so the monster side reflects other fighters' damage.
		t, err = store.Targets.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		foe := &combat.Combatant{
			ID: t.ID, Kind: combat.KindMonster, Name: t.Name,
			Pow: t.Pow, Def: t.Def, Spd: t.Spd,
			MaxHP: t.HPMax, CurrentHP: t.HP,
		}
		rr := combat.ResolveRound(me, foe, src)
		fmt.Fprintf(w, "round %d: %s\n", round, rr.Narrative)

		if rr.PlayerDamage > 0 {
			res, err := srv.Engine.DealDamage(ctx, t.ID, c.ID, rr.PlayerDamage, round)
			if err != nil {
				return err
			}
			for _, m := range res.Messages {
				fmt.Fprintln(w, "  "+m)
			}
			if res.Recoil > 0 {
				me.ApplyDamage(res.Recoil)
				fmt.Fprintf(w, "  recoil %d\n", res.Recoil)
			}
			fmt.Fprintf(w, "  %s HP %d (dealt %d, phase %d)\n", t.Name, res.NewHP, res.Dealt, res.Phase)
			if res.AlreadyComplete {
				return nil
			}
			if res.Completion != nil {
				for _, a := range res.Completion.Awards {
					fmt.Fprintf(w, "  award %s: %d damage, %d XP, %d gold (+%d killer)\n",
						a.ParticipantID, a.Damage, a.XP, a.Gold, a.KillerBonus)
				}
				return nil
			}
		}
		if me.IsDead() {
			fmt.Fprintf(w, "%s falls.\n", me.Name)
			return nil
		}
	}
	line, err := srv.Engine.GetStatus(ctx, t.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, line)
	return nil
}
