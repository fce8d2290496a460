package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/app"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	appLog := logger.New(cfg)

	application, err := app.NewApp(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal().Err(err).Msg("startup failed")
	}
	defer application.Close()

	appLog.Info().Str("version", cfg.Version).Msg("docchat is running; DB connected and bootstrapped")
	if err := application.Run(ctx); err != nil {
		appLog.Error().Err(err).Msg("server stopped with error")
		return
	}
	appLog.Info().Msg("shut down cleanly")
}
