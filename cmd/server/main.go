package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/Haven-Technologies-Inc/telecall/internal/adapters/http"
	"github.com/Haven-Technologies-Inc/telecall/internal/config"
	"github.com/Haven-Technologies-Inc/telecall/internal/metrics"
	"github.com/Haven-Technologies-Inc/telecall/internal/relay"
	"github.com/Haven-Technologies-Inc/telecall/internal/turncred"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	issuer, err := turncred.NewIssuer(turncred.Config{
		Realm:  cfg.TURN.Realm,
		Host:   cfg.TURN.Host,
		Secret: cfg.TURN.Secret,
		TTL:    cfg.TURN.TTL,
	})
	if err != nil {
		// Misconfiguration is fatal; an unscoped credential is never an
		// acceptable fallback.
		log.Fatal().Err(err).Msg("credential issuer")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	relaySrv := relay.NewServer(cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, issuer, relaySrv)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("realm", cfg.TURN.Realm).Msg("telecall server started")
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
