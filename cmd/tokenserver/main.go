package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voiceroom/internal/config"
	"github.com/dkeye/voiceroom/internal/tokenserver"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.TokenServer.APIKey == "" || cfg.TokenServer.APISecret == "" {
		log.Fatal().Msg("tokenserver.api_key and tokenserver.api_secret are required")
	}

	dir := tokenserver.NewDirectory(cfg.TokenServer.Rooms)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.TokenServer.Port),
		Handler: tokenserver.New(cfg.TokenServer, cfg.Identity, dir).Router(cfg.Mode),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Int("rooms", len(dir.List())).Msg("token server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("token server exited")
}
