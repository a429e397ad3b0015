package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tablestakes/cardroom/internal/config"
	"github.com/tablestakes/cardroom/internal/economy"
	"github.com/tablestakes/cardroom/internal/evaluator"
	"github.com/tablestakes/cardroom/internal/gameid"
	"github.com/tablestakes/cardroom/internal/integrity"
	"github.com/tablestakes/cardroom/internal/ledger"
	"github.com/tablestakes/cardroom/internal/room"
	"github.com/tablestakes/cardroom/internal/server"
	"github.com/tablestakes/cardroom/internal/session"
	"github.com/tablestakes/cardroom/internal/syncer"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"cardroom.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Listen address (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	addr := cfg.Address()
	if CLI.Addr != "" {
		addr = CLI.Addr
	}
	logger.Info("starting cardroom",
		"addr", addr,
		"rooms", len(cfg.Rooms),
		"configHash", cfg.Hash()[:12])

	clock := quartz.NewReal()
	// quartz's Now takes optional trace tags, so method values need a wrap
	// to satisfy plain func() time.Time constructors.
	now := func() time.Time { return clock.Now() }
	ids := gameid.NewGenerator(nil, nil)
	led := ledger.NewManager(ids, now)
	sessions := session.NewManager(cfg.SessionConfig(), clock, ids, logger)
	eval := evaluator.New()

	rooms := make(map[string]*room.Room)
	roomsByName := make(map[string]*room.Room)
	for _, rs := range cfg.Rooms {
		eng := economy.NewEngine(led, rs.RakeConfig(), now)
		sync := syncer.NewEngine(cfg.SyncConfig())
		collector := integrity.NewCollector(ids, now)
		rm := room.New(rs.RoomConfig(), room.Deps{
			Sessions:  sessions,
			Economy:   eng,
			Sync:      sync,
			Collector: collector,
			Evaluator: eval,
			IDs:       ids,
			Clock:     clock,
			Logger:    logger,
		})
		rooms[rm.ID] = rm
		roomsByName[rs.Name] = rm
		logger.Info("created room",
			"id", rm.ID,
			"name", rs.Name,
			"stakes", fmt.Sprintf("%d/%d", rs.SmallBlind, rs.BigBlind),
			"tables", rs.TableCount)
	}

	srv := server.New(addr, sessions, rooms, logger, prometheus.DefaultRegisterer)

	// Rooms publish through the hub; hand the publisher to each room's deps.
	for _, rm := range rooms {
		rm.SetPublisher(srv.Hub())
	}

	// Disconnect and expiry sweeps feed back into the owning room.
	sessions.OnDisconnect = func(s session.Session) {
		if rm, ok := rooms[s.RoomID]; ok {
			rm.NotifyDisconnect(s.PlayerID)
		}
	}
	sessions.OnReconnect = func(s session.Session) {
		if rm, ok := rooms[s.RoomID]; ok {
			rm.NotifyReconnect(s.PlayerID)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, rm := range rooms {
		rm := rm
		g.Go(func() error {
			err := rm.Run(gctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessions.CheckTimeouts()
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		kctx.Exit(1)
	}
}
