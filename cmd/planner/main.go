package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/buildinfo"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/cli"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/config"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, slog.LevelWarn)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
