package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"blockminds/internal/app"
	"blockminds/internal/config"
	"blockminds/internal/logging"
	"blockminds/internal/mcpserver"
	"blockminds/internal/service"
	"blockminds/internal/version"
	"blockminds/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	openStoreFunc  = app.OpenStore
	serveFunc      = mcpserver.Serve
	fatalFunc      = func(logger zerolog.Logger, err error, msg string) { logger.Fatal().Err(err).Msg(msg) }
)

// The MCP binary only reads the published store; it never runs the pipeline.
func main() {
	_ = loadEnvFunc()
	tracing.Version = version.Version

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := loadConfigFunc()
	if err != nil {
		fatalFunc(bootLogger, err, "load config")
		return
	}
	logger := logging.NewLoggerTo(os.Stderr, cfg.Logging)
	log := logging.Component(logger, "mcp")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		fatalFunc(log, err, "initialize tracer")
		return
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	snapshots, closeStore, err := newSnapshots(ctx, cfg, tracer, logger)
	if err != nil {
		fatalFunc(log, err, "open store")
		return
	}
	defer closeStore()

	server := mcpserver.New(snapshots, version.Version)
	log.Info().Str("transport", cfg.MCP.Transport).Str("addr", cfg.MCP.Addr).Msg("mcp server starting")
	if err := serveFunc(ctx, server, cfg.MCP.Transport, cfg.MCP.Addr); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("mcp server stopped")
	}
}

func newSnapshots(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger zerolog.Logger) (*service.SnapshotService, func(), error) {
	st, err := openStoreFunc(ctx, cfg, tracer)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = st.Close(context.WithoutCancel(ctx)) }
	return service.NewSnapshotService(tracer, st, nil, logger), closeStore, nil
}
