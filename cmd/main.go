// Command goclaw starts the conversational-agent runtime core: it loads
// configuration, wires the persistence, bus, session, auth, cron,
// heartbeat, channel, orchestration, and WebSocket-server components,
// and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/auth"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/slack"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/channels/tui"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/heartbeat"
	"github.com/nextlevelbuilder/goclaw/internal/orchestration"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/pg"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
	"github.com/nextlevelbuilder/goclaw/internal/wsserver"
)

// backend is the persistence surface every store implementation
// satisfies, letting main wire either sqlite or postgres identically.
type backend interface {
	auth.Store
	sessions.Store
	cron.Store
}

func main() {
	cfgPath := flag.String("config", "goclaw.json", "path to the JSON(5) configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to open persistence backend", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	msgBus := bus.New(bus.WithCapacity(busCapacity(cfg)), bus.WithArenaBytes(busArenaBytes(cfg)))
	defer msgBus.Destroy()

	authMgr, err := auth.NewManager(be)
	if err != nil {
		slog.Error("failed to init auth manager", "error", err)
		os.Exit(1)
	}
	authMgr.DevMode = cfg.Auth.DevMode

	sessMgr := sessions.NewManager(sessions.WithStore(be))

	toolsReg := tools.NewDefaultRegistry()

	loopOpts := []orchestration.Option{orchestration.WithAuth(authMgr)}
	if tracer, err := tracing.NewCollector(); err != nil {
		slog.Warn("tracing disabled: failed to start collector", "error", err)
	} else {
		defer tracer.Stop(context.Background())
		loopOpts = append(loopOpts, orchestration.WithTracer(tracer))
	}

	llm := newPlaceholderLLM()

	loop := orchestration.NewLoop(msgBus, sessMgr, llm, toolsReg, loopOpts...)
	go loop.Run(ctx)

	chanMgr := channels.NewManager(msgBus)
	registerChannels(chanMgr, cfg, msgBus)
	if err := chanMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}
	defer chanMgr.StopAll(context.Background())

	hb := heartbeat.New(cfg.Heartbeat.Path, msgBus)
	hb.Enabled = cfg.Heartbeat.Enabled
	if cfg.Heartbeat.IntervalSec > 0 {
		hb.IntervalSec = int64(cfg.Heartbeat.IntervalSec)
	}

	sched := cron.NewScheduler(newCronExecutor(msgBus, toolsReg), be)
	if err := sched.Load(); err != nil {
		slog.Warn("failed to load cron jobs", "error", err)
	}
	go runTicker(ctx, hb, sched)

	var ws *wsserver.Server
	if cfg.Gateway.Port > 0 {
		addr := cfg.Gateway.Host + ":" + strconv.Itoa(cfg.Gateway.Port)
		ws, err = wsserver.Listen(addr, msgBus)
		if err != nil {
			slog.Error("failed to start websocket server", "error", err)
		} else {
			defer ws.Close()
			go runWSPoll(ctx, ws)
		}
	}

	skillsLoader := skills.NewLoader("skills", os.Getenv("GOCLAW_SKILLS_DIR"))
	if skillsWatcher, err := skills.NewWatcher(skillsLoader); err != nil {
		slog.Warn("skills watcher unavailable", "error", err)
	} else if err := skillsWatcher.Start(ctx); err != nil {
		slog.Warn("skills watcher start failed", "error", err)
	} else {
		defer skillsWatcher.Stop()
	}

	slog.Info("goclaw core started")
	waitForShutdown()
	slog.Info("shutting down")
	cancel()
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if cfg.Store.Driver == "postgres" && cfg.Store.PostgresDSN != "" {
		s, err := pg.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { s.Close() }, nil
	}
	path := cfg.Store.SqlitePath
	if path == "" {
		path = "./goclaw.db"
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return s, func() { s.Close() }, nil
}

func busCapacity(cfg *config.Config) int {
	if cfg.Bus.QueueCapacity > 0 {
		return cfg.Bus.QueueCapacity
	}
	return 256
}

func busArenaBytes(cfg *config.Config) int {
	if cfg.Bus.ArenaBytes > 0 {
		return cfg.Bus.ArenaBytes
	}
	return 1 << 20
}

func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.Bus) {
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			slog.Error("telegram channel init failed", "error", err)
		} else if err := mgr.Register(ch); err != nil {
			slog.Error("telegram channel register failed", "error", err)
		}
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			slog.Error("discord channel init failed", "error", err)
		} else if err := mgr.Register(ch); err != nil {
			slog.Error("discord channel register failed", "error", err)
		}
	}
	if cfg.Channels.Slack.Enabled {
		if err := mgr.Register(slack.New(cfg.Channels.Slack, msgBus)); err != nil {
			slog.Error("slack channel register failed", "error", err)
		}
	}
	if cfg.Channels.TUI.Enabled {
		if err := mgr.Register(tui.New(cfg.Channels.TUI, msgBus)); err != nil {
			slog.Error("tui channel register failed", "error", err)
		}
	}
}

// runTicker drives the cron scheduler and heartbeat poller once a
// second, the only two components specified as plain sleep-driven
// tasks rather than blocking reads.
func runTicker(ctx context.Context, hb *heartbeat.Heartbeat, sched *cron.Scheduler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sched.Tick(now)
			if hb.Enabled {
				if _, err := hb.Tick(now); err != nil {
					slog.Warn("heartbeat tick failed", "error", err)
				}
			}
		}
	}
}

// runWSPoll drives the WebSocket server's 10ms readiness multiplex.
func runWSPoll(ctx context.Context, s *wsserver.Server) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Poll()
		}
	}
}
