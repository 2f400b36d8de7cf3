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

	"github.com/dkeye/voiceroom/internal/adapters/capture"
	"github.com/dkeye/voiceroom/internal/adapters/events"
	router "github.com/dkeye/voiceroom/internal/adapters/http"
	"github.com/dkeye/voiceroom/internal/adapters/identity"
	"github.com/dkeye/voiceroom/internal/adapters/livekit"
	"github.com/dkeye/voiceroom/internal/adapters/surface"
	"github.com/dkeye/voiceroom/internal/app/credential"
	"github.com/dkeye/voiceroom/internal/app/session"
	"github.com/dkeye/voiceroom/internal/config"
	"github.com/dkeye/voiceroom/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ident, err := identity.NewAnonymous(cfg.Identity)
	if err != nil {
		log.Fatal().Err(err).Msg("identity")
	}
	recorder, err := surface.NewRecorder(cfg.RecordingsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("recordings")
	}
	mounts := core.Mounts{Audio: recorder, Video: recorder, Preview: &surface.Preview{}}

	hub := events.NewHub(cfg.EventBuffer)
	defer hub.Close()

	ctl := session.NewController(session.Config{
		Endpoint:    cfg.TransportURL,
		Credentials: credential.NewFetcher(cfg.TokenEndpoint, ident, nil),
		Transports:  livekit.NewFactory(),
		Devices:     capture.New(cfg.Devices),
		Observer:    hub,
	})
	defer ctl.Leave()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Session:     ctl,
		Mounts:      mounts,
		Events:      hub,
		JoinLimiter: router.NewRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voiceroom started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
