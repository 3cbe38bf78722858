package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hexfleet/server/internal/assets"
	"github.com/hexfleet/server/internal/config"
	"github.com/hexfleet/server/internal/core/event"
	coresys "github.com/hexfleet/server/internal/core/system"
	"github.com/hexfleet/server/internal/data"
	"github.com/hexfleet/server/internal/engine"
	"github.com/hexfleet/server/internal/feed"
	"github.com/hexfleet/server/internal/geo"
	"github.com/hexfleet/server/internal/grid"
	"github.com/hexfleet/server/internal/identity"
	"github.com/hexfleet/server/internal/occupancy"
	"github.com/hexfleet/server/internal/persist"
	"github.com/hexfleet/server/internal/scripting"
	"github.com/hexfleet/server/internal/system"
	"github.com/hexfleet/server/internal/traci"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxFailedTicks consecutive failed ticks end the run; SUMO has usually exited.
const maxFailedTicks = 50

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, simAddr string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              hexfleet  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     SUMO vehicles · hexagon occupancy     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mrun:\033[0m %s \033[90m(sumo: %s)\033[0m\n\n", name, simAddr)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main loop ─────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/hexfleet.toml"
	if p := os.Getenv("HEXFLEET_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Simulator.Address)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. Cell catalog: yaml layout first, then Lua layout scripts
	printSection("layout")
	catalog := grid.NewCatalog()
	if cfg.Grid.Layout != "" {
		layout, err := data.LoadLayout(cfg.Grid.Layout)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("cell layout not found, skipping", zap.String("path", cfg.Grid.Layout))
		case err != nil:
			return fmt.Errorf("load cell layout: %w", err)
		default:
			printStat("yaml cells", layout.Apply(catalog))
		}
	}
	if cfg.Grid.ScriptDir != "" {
		lua, err := scripting.NewEngine(cfg.Grid.ScriptDir, cfg.Grid.Radius, log)
		if err != nil {
			return fmt.Errorf("lua layout: %w", err)
		}
		printStat("lua cells", lua.Apply(catalog))
		lua.Close()
	}
	printStat("total cells", catalog.Len())
	fmt.Println()

	// 4. Core components
	conv, err := geo.New(cfg.Geo.Projection, cfg.Geo.NetOffsetX, cfg.Geo.NetOffsetY)
	if err != nil {
		return fmt.Errorf("coordinate converter: %w", err)
	}
	registry, err := newRegistry(cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity registry: %w", err)
	}
	sim := traci.NewClient(traci.Options{
		Address:     cfg.Simulator.Address,
		DialTimeout: cfg.Simulator.DialTimeout,
		IOTimeout:   cfg.Simulator.IOTimeout,
		Retries:     cfg.Simulator.ConnectRetries,
		RetryDelay:  cfg.Simulator.RetryDelay,
	}, log)
	bus := event.NewBus()
	driver := engine.NewDriver(sim, conv, registry, catalog,
		occupancy.NewReconciler(grid.NewHexagon(cfg.Grid.Radius)), bus, log)

	runner := coresys.NewRunner()
	input := system.NewInputSystem(sim, cfg.Feed.CommandQueue, cfg.Feed.MaxCommandsTick, log)
	runner.Register(input)
	runner.Register(driver)

	if cfg.Assets.Enabled {
		gen, err := assets.NewGenerator(cfg.Assets.Template, cfg.Assets.OutDir)
		if err != nil {
			return fmt.Errorf("asset generator: %w", err)
		}
		runner.Register(system.NewAssetSystem(gen, bus, log))
	}

	// 5. Optional occupancy log
	var (
		runs    *persist.RunRepo
		runID   int64
		persSys *system.PersistenceSystem
	)
	if cfg.Database.Enabled {
		printSection("database")
		dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			dbCancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")
		if err := persist.RunMigrations(dbCtx, db.Pool); err != nil {
			dbCancel()
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		runs = persist.NewRunRepo(db)
		runID, err = runs.Start(dbCtx, cfg.Server.Name, cfg.Simulator.Address, catalog.Len())
		dbCancel()
		if err != nil {
			return fmt.Errorf("start run record: %w", err)
		}
		persSys = system.NewPersistenceSystem(persist.NewOccupancyRepo(db), runID, bus,
			cfg.Database.FlushInterval, cfg.Database.MaxBuffered, log)
		runner.Register(persSys)
		printStat("run id", int(runID))
		fmt.Println()
	}

	// 6. Consumer feed
	var hub *feed.Hub
	if cfg.Feed.Enabled {
		hub = feed.NewHub(feed.Options{
			WriteTimeout: cfg.Feed.WriteTimeout,
			OutQueueSize: cfg.Feed.OutQueueSize,
		}, input, log)
		hub.Attach(bus)
		if err := hub.Start(cfg.Feed.BindAddress); err != nil {
			return fmt.Errorf("feed server: %w", err)
		}
	}

	// 7. Simulator
	printSection("simulator")
	if err := sim.Connect(ctx); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	printOK("TraCI session open")
	fmt.Println()

	printSection("ready")
	if hub != nil {
		printReady(fmt.Sprintf("feed at ws://%s/feed", hub.Addr()))
	}
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Tick.Rate))
	fmt.Println()

	loopErr := tickLoop(ctx, runner, driver, sim, cfg.Tick, log)

	// 8. Shutdown
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if hub != nil {
		if err := hub.Shutdown(stopCtx); err != nil {
			log.Warn("feed shutdown", zap.Error(err))
		}
	}
	if err := sim.Close(); err != nil {
		log.Warn("close simulator session", zap.Error(err))
	}
	if persSys != nil {
		if err := persSys.Flush(stopCtx); err != nil {
			log.Error("final occupancy log flush", zap.Int("rows", persSys.Buffered()), zap.Error(err))
		}
		if err := runs.Finish(stopCtx, runID, driver.TickCount()); err != nil {
			log.Error("finish run record", zap.Int64("run", runID), zap.Error(err))
		} else if row, err := runs.Load(stopCtx, runID); err == nil && row != nil && row.EndedAt != nil {
			log.Info("run recorded",
				zap.Int64("run", row.ID),
				zap.Uint64("ticks", row.Ticks),
				zap.Int("cells", row.CellCount),
				zap.Duration("duration", row.EndedAt.Sub(row.StartedAt)))
		}
	}
	log.Info("stopped", zap.Uint64("ticks", driver.TickCount()))
	return loopErr
}

// tickLoop runs the systems on every tick until ctx is done, the tick limit is
// reached, or too many ticks in a row fail. A failed tick is logged and the
// next one proceeds normally; a dropped simulator session is reopened first.
func tickLoop(ctx context.Context, runner *coresys.Runner, driver *engine.Driver, sim engine.Simulator, cfg config.TickConfig, log *zap.Logger) error {
	ticker := time.NewTicker(cfg.Rate)
	defer ticker.Stop()

	failed := 0
	for {
		select {
		case <-ticker.C:
			if err := runner.Tick(ctx, cfg.Rate); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failed++
				log.Warn("tick failed", zap.Int("consecutive", failed), zap.Error(err))
				if failed >= maxFailedTicks {
					return fmt.Errorf("%d consecutive ticks failed: %w", failed, err)
				}
				if errors.Is(err, traci.ErrNotConnected) || errors.Is(err, traci.ErrConnectionLost) {
					if cerr := sim.Connect(ctx); cerr != nil {
						log.Warn("reconnect to simulator failed", zap.Error(cerr))
					}
				}
				continue
			}
			failed = 0
			if cfg.MaxTicks > 0 && driver.TickCount() >= cfg.MaxTicks {
				log.Info("tick limit reached", zap.Uint64("ticks", cfg.MaxTicks))
				return nil
			}
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		}
	}
}

func newRegistry(cfg config.IdentityConfig) (*identity.Registry, error) {
	policy, err := identity.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.MaxEntries > 0 {
		return identity.NewBoundedRegistry(cfg.MaxEntries, policy, nil)
	}
	return identity.NewRegistry(policy, nil), nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
