package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"blockminds/internal/app"
	"blockminds/internal/config"
	"blockminds/internal/logging"
	"blockminds/internal/service"
	"blockminds/internal/tui"
	"blockminds/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	wishlogging "github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initTracerFunc    = tracing.InitTracer
	openStoreFunc     = app.OpenStore
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
	fatalFunc         = func(logger zerolog.Logger, err error, msg string) { logger.Fatal().Err(err).Msg(msg) }
)

// fingerprintAllowed reports whether key is on the allow-list. An empty list
// admits nobody.
func fingerprintAllowed(allowed []string, key ssh.PublicKey) (string, bool) {
	fingerprint := gossh.FingerprintSHA256(key)
	for _, a := range allowed {
		if a == fingerprint {
			return fingerprint, true
		}
	}
	return fingerprint, false
}

func main() {
	_ = loadEnvFunc()

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := loadConfigFunc()
	if err != nil {
		fatalFunc(bootLogger, err, "load config")
		return
	}
	logger := logging.NewLogger(cfg.Logging)
	log := logging.Component(logger, "ssh")

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

	st, err := openStoreFunc(ctx, cfg, tracer)
	if err != nil {
		fatalFunc(log, err, "open store")
		return
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()
	snapshots := service.NewSnapshotService(tracer, st, nil, logger)

	srv, err := newWishServerFunc(
		wish.WithAddress(cfg.SSH.Addr),
		wish.WithHostKeyPath(cfg.SSH.HostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			fingerprint, ok := fingerprintAllowed(cfg.SSH.AllowedFingerprints, key)
			if !ok {
				log.Warn().Str("fingerprint", fingerprint).Str("user", ctx.User()).Msg("ssh auth denied")
				return false
			}
			log.Info().Str("fingerprint", fingerprint).Str("user", ctx.User()).Msg("ssh auth accepted")
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				model := tui.NewModel(snapshots, s.User())
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)
				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			wishlogging.Middleware(),
		),
	)
	if err != nil {
		fatalFunc(log, err, "create ssh server")
		return
	}

	if srv != nil {
		go func() {
			log.Info().Str("addr", cfg.SSH.Addr).Msg("ssh server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				log.Error().Err(err).Msg("ssh server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down ssh server")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("ssh server shutdown")
		}
	}

	log.Info().Msg("ssh server exited")
}
