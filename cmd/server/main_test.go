package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"blockminds/internal/app"
	"blockminds/internal/bot"
	"blockminds/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var jobs, botStarted atomic.Int32
	restore := stubServerDeps(&jobs, &botStarted)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
	if jobs.Load() != 2 {
		t.Fatalf("expected pipeline and history jobs, got %d", jobs.Load())
	}
	if botStarted.Load() != 1 {
		t.Fatal("expected bot start to be attempted")
	}
}

func TestMainConfigErrorIsFatal(t *testing.T) {
	var jobs, botStarted atomic.Int32
	restore := stubServerDeps(&jobs, &botStarted)
	defer restore()

	loadConfigFunc = func() (*config.Config, error) { return nil, errors.New("bad config") }
	var fatal string
	fatalFunc = func(_ zerolog.Logger, err error, msg string) { fatal = msg }

	main()
	if fatal != "load config" {
		t.Fatalf("expected fatal on config load, got %q", fatal)
	}
	if jobs.Load() != 0 {
		t.Fatal("no job may start without config")
	}
}

func stubServerDeps(jobs, botStarted *atomic.Int32) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewApp := newAppFunc
	origStartJobs := startJobsFunc
	origStartBot := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc
	origFatal := fatalFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() (*config.Config, error) {
		return &config.Config{
			App:       config.AppConfig{Name: "blockminds"},
			HTTP:      config.HTTPConfig{Addr: ":0"},
			Store:     config.StoreConfig{Backend: "memory"},
			CoinGecko: config.CoinGeckoConfig{BaseURL: "http://coingecko.test", MinInterval: time.Second, HistoryDays: 365},
			Fetch:     config.FetchConfig{MaxAttempts: 1},
			Collector: config.CollectorConfig{ChunkSize: 4, Workers: 2},
			Pipeline:  config.PipelineConfig{EnrichWorkers: 1},
		}, nil
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newAppFunc = app.New
	startJobsFunc = func(ctx context.Context, js ...interface{ Start(context.Context) }) {
		jobs.Add(int32(len(js)))
	}
	startTelegramBotFunc = func(ctx context.Context, token string, snapshots bot.SnapshotReader, logger zerolog.Logger) error {
		botStarted.Add(1)
		return nil
	}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }
	fatalFunc = func(zerolog.Logger, error, string) {}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newAppFunc = origNewApp
		startJobsFunc = origStartJobs
		startTelegramBotFunc = origStartBot
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
		fatalFunc = origFatal
	}
}
