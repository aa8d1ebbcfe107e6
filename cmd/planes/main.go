package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"planes/internal/allocation"
	"planes/internal/config"
	"planes/internal/domain"
	"planes/internal/maxsum"
	"planes/internal/sim"
	sqlitestore "planes/internal/store/sqlite"
)

// overrideList collects repeatable -o key=value flags.
type overrideList []string

func (o *overrideList) String() string { return strings.Join(*o, ",") }

func (o *overrideList) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("override must be key=value, got %q", v)
	}
	*o = append(*o, v)
	return nil
}

func main() {
	var overrides overrideList
	configPath := flag.String("config", "", "path to settings.toml (default: built-in settings)")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	quiet := flag.Bool("quiet", false, "suppress the progress line")
	dryRun := flag.Bool("dry-run", false, "print the resolved settings and exit")
	dumpSettings := flag.Bool("dump-settings", false, "print the built-in default settings and exit")
	flag.Var(&overrides, "o", "override a setting, e.g. -o maxsum.iterations=100 (repeatable)")
	flag.Parse()

	if *dumpSettings {
		fmt.Print(config.DefaultSettings)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	for _, item := range overrides {
		key, value, _ := strings.Cut(item, "=")
		if err := cfg.ApplyOverride(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			log.Fatalf("apply override: %v", err)
		}
	}
	if *dbPathFlag != "" {
		cfg.Store.DBPath = *dbPathFlag
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	if *dryRun {
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			log.Fatalf("encode settings: %v", err)
		}
		return
	}

	dbPath := filepath.Clean(cfg.Store.DBPath)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create db directory: %v", err)
		}
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	policyKind, err := maxsum.ParsePolicy(cfg.MaxSum.CostPolicy)
	if err != nil {
		log.Fatalf("parse cost policy: %v", err)
	}
	alloc, err := allocation.New(allocation.Config{
		Iterations: cfg.MaxSum.Iterations,
		Policy: maxsum.Policy{
			Kind:          policyKind,
			WorkloadK:     cfg.MaxSum.WorkloadK,
			WorkloadAlpha: cfg.MaxSum.WorkloadAlpha,
			Damping:       cfg.MaxSum.Damping,
		},
	}, log.Default())
	if err != nil {
		log.Fatalf("create allocator: %v", err)
	}

	problem := sim.Generate(cfg)
	runID := uuid.NewString()

	var settingsText strings.Builder
	if err := toml.NewEncoder(&settingsText).Encode(cfg); err != nil {
		log.Fatalf("encode settings: %v", err)
	}
	if err := store.CreateRun(ctx, sqliteRun(runID, cfg, settingsText.String())); err != nil {
		log.Fatalf("create run: %v", err)
	}

	var progressOut io.Writer = os.Stderr
	if *quiet {
		progressOut = io.Discard
	}
	reporter := sim.NewReporter(progressOut)
	reporter.Start()

	world := sim.NewWorld(cfg, problem, alloc, reporter, store, runID, log.Default())

	log.Printf(
		"planes started run=%s planes=%d tasks=%d ticks=%d policy=%s iterations=%d seed=%d db=%s",
		runID,
		cfg.Planes.Count,
		cfg.Tasks.Count,
		cfg.World.DurationTicks,
		cfg.MaxSum.CostPolicy,
		cfg.MaxSum.Iterations,
		cfg.World.Seed,
		dbPath,
	)

	runErr := world.Run(ctx)
	reporter.Stop()
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}

	status := runStatus(runErr)
	if err := store.FinishRun(context.Background(), runID, status); err != nil {
		log.Printf("finish run: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("simulation failed: %v", runErr)
	}

	log.Printf(
		"planes finished run=%s status=%s ticks=%d completed=%d pending=%d",
		runID,
		status,
		world.Tick(),
		world.CompletedTasks(),
		world.PendingTasks(),
	)
}

func sqliteRun(runID string, cfg config.Config, settings string) domain.RunRecord {
	return domain.RunRecord{
		ID:            runID,
		Status:        domain.RunStatusRunning,
		Settings:      settings,
		DurationTicks: cfg.World.DurationTicks,
		Seed:          cfg.World.Seed,
	}
}

func runStatus(err error) domain.RunStatus {
	if err == nil || errors.Is(err, context.Canceled) {
		return domain.RunStatusFinished
	}
	return domain.RunStatusFailed
}
