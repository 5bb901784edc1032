package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FiditeNemini/artcraft-sub020/internal/config"
	"github.com/FiditeNemini/artcraft-sub020/internal/database"
	"github.com/FiditeNemini/artcraft-sub020/internal/event"
	"github.com/FiditeNemini/artcraft-sub020/internal/gpuhealth"
	"github.com/FiditeNemini/artcraft-sub020/internal/handler"
	"github.com/FiditeNemini/artcraft-sub020/internal/httpserver"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/FiditeNemini/artcraft-sub020/internal/metrics"
	"github.com/FiditeNemini/artcraft-sub020/internal/modelscan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Run wires one worker process and blocks until shutdown: DB pool, GPU
// health probe, handler registry, the claim loop, and the operational HTTP
// endpoint.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is required (set AC_DATABASE_URL)")
	}

	capCfg, err := capabilityConfig(cfg.Worker)
	if err != nil {
		return err
	}
	if len(capCfg.EnabledJobTypes) == 0 {
		return fmt.Errorf("no enabled job types; set worker.enabled_job_types")
	}

	if err := os.MkdirAll(cfg.Worker.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	store := jobs.NewPGStore(pool)
	bus := event.NewBus()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.SubscribeBus(bus)

	probe := gpuhealth.NewProbe(
		cfg.Health.ProbeCommand,
		cfg.Health.ProbeArgs,
		cfg.Health.Interval(),
	)
	go probe.Run(ctx)

	snapshot := func() CapabilitySnapshot {
		scan := modelscan.Scan(cfg.Worker.ModelSearchPaths, capCfg.RequiredModelFiles)
		snap := BuildSnapshot(capCfg, probe.Snapshot(), scan)
		if snap.GPUHealthy {
			m.GPUHealthy.Set(1)
		} else {
			m.GPUHealthy.Set(0)
		}
		return snap
	}

	handlers := handler.NewRegistry()
	for _, t := range capCfg.EnabledJobTypes {
		handlers.Register(handler.NotImplemented{JobType: t})
	}
	RegisterHandlers(handlers, capCfg.EnabledJobTypes)

	initialScan := modelscan.Scan(cfg.Worker.ModelSearchPaths, capCfg.RequiredModelFiles)
	deps := &handler.Dependencies{
		DB:         pool,
		ModelPaths: initialScan.PathByType,
		ScratchDir: cfg.Worker.ScratchDir,
	}

	dispatcher := NewDispatcher(handlers, store, deps,
		cfg.Worker.KeepaliveInterval(), cfg.Worker.KeepaliveMaxAge())
	recorder := NewRecorder(store, bus, cfg.Worker.ID)
	loop := NewLoop(LoopConfig{
		WorkerID:        cfg.Worker.ID,
		BatchCapacity:   cfg.Worker.BatchCapacity,
		OrderByPriority: cfg.Worker.OrderByPriority,
		BatchWait:       cfg.Worker.BatchWait(),
		ErrorWait:       cfg.Worker.ErrorWait(),
	}, store, dispatcher, recorder, snapshot, bus)

	srv := httpserver.New(cfg.Server.Host, cfg.Server.Port, registry, func() httpserver.HealthView {
		snap := snapshot()
		types := make([]string, 0, len(snap.JobTypes))
		for _, t := range snap.JobTypes {
			types = append(types, string(t))
		}
		return httpserver.HealthView{
			Claimable:   snap.ClaimsAnything(),
			GPUHealthy:  snap.GPUHealthy,
			JobTypes:    types,
			RoutingTags: snap.RoutingTags,
			TakenAt:     snap.TakenAt,
		}
	})
	srv.RegisterJobsAPI(store, cfg.Worker.MaxAttempts)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	err = loop.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// RegisterHandlers installs the real job-type handlers compiled into this
// build. Inference handlers live in their own packages and register over the
// NotImplemented placeholders; a build without them still schedules and
// dead-letters cleanly.
func RegisterHandlers(_ *handler.Registry, _ []jobs.JobType) {}

func capabilityConfig(w config.WorkerConfig) (CapabilityConfig, error) {
	cfg := CapabilityConfig{
		RoutingTags:        w.RoutingTags,
		RequiredModelFiles: make(map[jobs.JobType]string, len(w.ModelFiles)),
	}

	for _, raw := range w.EnabledJobTypes {
		t := jobs.JobType(raw)
		if !t.Valid() {
			return cfg, fmt.Errorf("unknown job type %q in worker.enabled_job_types", raw)
		}
		cfg.EnabledJobTypes = append(cfg.EnabledJobTypes, t)
	}

	for raw, filename := range w.ModelFiles {
		t := jobs.JobType(raw)
		if !t.Valid() {
			return cfg, fmt.Errorf("unknown job type %q in worker.model_files", raw)
		}
		cfg.RequiredModelFiles[t] = filename
	}

	return cfg, nil
}
