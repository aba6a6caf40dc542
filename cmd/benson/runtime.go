package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/benson/pkg/audit"
	"github.com/Mindburn-Labs/benson/pkg/config"
	"github.com/Mindburn-Labs/benson/pkg/engine"
	"github.com/Mindburn-Labs/benson/pkg/export"
	"github.com/Mindburn-Labs/benson/pkg/ingress"
	"github.com/Mindburn-Labs/benson/pkg/observability"
)

// services is the composed engine plus every resource it owns.
type services struct {
	engine    *engine.Engine
	emitter   *audit.Emitter
	telemetry *observability.Provider
	closers   []func() error
}

// openAuditLog returns the configured audit backend.
func openAuditLog(ctx context.Context, cfg config.AuditConfig) (audit.Log, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.OpenSQLiteLog(cfg.SQLitePath)
	case "postgres":
		return audit.OpenPostgresLog(ctx, cfg.PostgresDSN)
	default:
		return audit.NewMemoryLog(), nil
	}
}

func openSeenStore(ctx context.Context, cfg config.IngressConfig) (ingress.SeenStore, error) {
	if cfg.SeenStore != "redis" {
		return ingress.NewMemorySeenStore(), nil
	}
	s := ingress.NewRedisSeenStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func telemetryConfig(cfg config.TelemetryConfig) *observability.Config {
	tc := observability.DefaultConfig()
	tc.Enabled = cfg.Enabled
	tc.OTLPEndpoint = cfg.OTLPEndpoint
	tc.Insecure = cfg.Insecure
	tc.ServiceName = cfg.ServiceName
	tc.SampleRate = cfg.SampleRate
	return tc
}

func sinkConfig(cfg config.ExportConfig) export.SinkConfig {
	return export.SinkConfig{
		Type:     export.SinkType(cfg.Sink),
		Dir:      cfg.Dir,
		Bucket:   cfg.Bucket,
		Prefix:   cfg.Prefix,
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
	}
}

// openRuntime wires config into a live engine. The caller must call close.
func (a *app) openRuntime(ctx context.Context) (_ *services, err error) {
	rt := &services{}
	defer func() {
		if err != nil {
			_ = rt.close(ctx)
		}
	}()

	log, err := openAuditLog(ctx, a.cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	rt.emitter, err = audit.NewEmitter(ctx, log, audit.WithLogger(a.logger.With("component", "audit")))
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.emitter.Close)

	seen, err := openSeenStore(ctx, a.cfg.Ingress)
	if err != nil {
		return nil, fmt.Errorf("failed to open seen store: %w", err)
	}
	if c, ok := seen.(io.Closer); ok {
		rt.closers = append(rt.closers, c.Close)
	}

	rt.telemetry, err = observability.New(ctx, telemetryConfig(a.cfg.Telemetry))
	if err != nil {
		return nil, err
	}

	v, err := ingress.NewValidator(
		ingress.WithSeenStore(seen),
		ingress.WithLogger(a.logger.With("component", "ingress")),
	)
	if err != nil {
		return nil, err
	}

	rt.engine, err = engine.New(ctx,
		engine.WithAuditEmitter(rt.emitter),
		engine.WithValidator(v),
		engine.WithTelemetry(rt.telemetry),
		engine.WithLogger(a.logger.With("component", "engine")),
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// close releases the engine slot before the backends it writes to.
func (rt *services) close(ctx context.Context) error {
	var errs []error
	if rt.engine != nil {
		errs = append(errs, rt.engine.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	errs = append(errs, rt.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
