package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"blockminds/internal/cli"
	"blockminds/internal/version"
	"blockminds/pkg/tracing"

	"github.com/joho/godotenv"
)

var (
	loadEnvFunc = godotenv.Load
	executeFunc = cli.Execute
	exitFunc    = os.Exit
)

func main() {
	_ = loadEnvFunc()
	tracing.Version = version.Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := executeFunc(ctx)
	stop()
	exitFunc(code)
}
