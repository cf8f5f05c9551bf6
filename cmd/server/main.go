package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockminds/internal/app"
	"blockminds/internal/bot"
	"blockminds/internal/config"
	"blockminds/internal/handler"
	"blockminds/internal/job"
	"blockminds/internal/logging"
	"blockminds/internal/service"
	"blockminds/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "blockminds/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	newAppFunc             = app.New
	startJobsFunc          = func(ctx context.Context, jobs ...interface{ Start(context.Context) }) { startJobs(ctx, jobs...) }
	startTelegramBotFunc   = bot.Start
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	fatalFunc              = func(logger zerolog.Logger, err error, msg string) { logger.Fatal().Err(err).Msg(msg) }
)

// @title           blockminds API
// @version         1.0
// @description     Read API over the published crypto market snapshot and pipeline control.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := loadConfigFunc()
	if err != nil {
		fatalFunc(bootLogger, err, "load config")
		return
	}
	logger := logging.NewLogger(cfg.Logging)
	log := logging.Component(logger, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		fatalFunc(log, err, "initialize tracer")
		return
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("shutdown tracer provider")
		}
	}()

	a, err := newAppFunc(ctx, cfg, tracer, logger)
	if err != nil {
		fatalFunc(log, err, "wire application")
		return
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer closeCancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("close application")
		}
	}()

	// Scheduled pipeline runs and the hourly history refresh stop with ctx.
	startJobsFunc(ctx,
		job.NewPipelineJob(tracer, a.Pipeline, cfg.Scheduler.PipelineInterval, cfg.Scheduler.StartupDelay, cfg.Scheduler.RunTimeout, logger),
		job.NewHistoryJob(tracer, a.Pipeline, cfg.Scheduler.HistoryInterval, logger),
	)

	if err := startTelegramBotFunc(ctx, cfg.Telegram.BotToken, a.Snapshots, logger); err != nil {
		log.Error().Err(err).Msg("telegram bot disabled")
	}

	trigger := service.NewRunTrigger(a.Pipeline, cfg.Scheduler.RunTimeout, logger)
	h := handler.New(tracer, a.Snapshots, trigger)

	r := newRouterFunc()
	r.Use(gin.Recovery(), otelgin.Middleware(cfg.App.Name))
	h.RegisterRoutes(r, handler.APIKeyAuth(cfg.HTTP.APIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalFunc(log, err, "listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}

func startJobs(ctx context.Context, jobs ...interface{ Start(context.Context) }) {
	for _, j := range jobs {
		go j.Start(ctx)
	}
}
