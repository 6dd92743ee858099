package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"openedu/client/internal/api"
	"openedu/client/internal/busy"
	"openedu/client/internal/cache"
	"openedu/client/internal/config"
	"openedu/client/internal/flow"
	"openedu/client/internal/guard"
	"openedu/client/internal/jobs"
	"openedu/client/internal/log"
	"openedu/client/internal/onboarding"
	authsignal "openedu/client/internal/signal"
	"openedu/client/internal/session"
	"openedu/client/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	store, err := token.NewStore(cfg.State.Dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open token store")
	}

	var broadcast authsignal.Broadcast
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// The flag-file signal path still works without the broadcast.
		logger.Warn().Err(err).Msg("redis unavailable, auth broadcast disabled")
	} else {
		broadcast = authsignal.NewRedisBroadcast(redisClient)
	}

	gauge := busy.NewGauge()
	go func() {
		// Drives the blocking overlay: one boolean no matter how many
		// requests are in flight.
		for busyNow := range gauge.Subscribe() {
			logger.Debug().Bool("busy", busyNow).Msg("request activity")
		}
	}()

	client := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, store, gauge, logger)
	resolver := session.NewResolver(client, logger)
	machine := onboarding.NewMachine(cfg.Routes)
	routeGuard := guard.New(cfg.Routes)

	navigate := func(ctx context.Context, path string) {
		verdict := routeGuard.Check(path, guard.SessionState{
			User:           resolver.Current(),
			Loading:        resolver.Loading(),
			HasCredentials: hasCredentials(store),
		})
		if verdict.Kind == guard.VerdictRedirect {
			logger.Info().Str("path", path).Str("redirect", verdict.Path).Msg("route guarded")
			return
		}
		if verdict.Kind == guard.VerdictWait {
			logger.Debug().Str("path", path).Msg("route waiting for session")
			return
		}

		if resolver.Loading() {
			return
		}
		state, decision := machine.Evaluate(resolver.Current(), path)
		logger.Info().
			Str("path", path).
			Str("state", string(state)).
			Str("decision", string(decision.Kind)).
			Str("target", decision.Path).
			Msg("onboarding evaluated")
	}

	finalize := func(ctx context.Context, attemptID string) {
		if _, err := resolver.Resolve(ctx); err != nil {
			logger.Warn().Err(err).Str("attempt_id", attemptID).Msg("post-login profile fetch failed")
			return
		}
		navigate(ctx, cfg.Routes.Dashboard)
	}

	listener := authsignal.NewListener(broadcast, cfg.State.Dir, cfg.State.FlagPollInterval, finalize, logger)
	listenerCtx, cancelListener := context.WithCancel(ctx)
	go func() {
		if err := listener.Run(listenerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("auth signal listener failed")
		}
	}()

	scheduler := jobs.NewScheduler(client, store, cfg, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go bootstrap(ctx, cfg, store, broadcast, resolver, navigate, logger)

	waitForShutdown(logger, cancelListener, scheduler)
}

// bootstrap either resumes the stored session or opens a fresh login.
func bootstrap(
	ctx context.Context,
	cfg *config.AppConfig,
	store *token.Store,
	broadcast authsignal.Broadcast,
	resolver *session.Resolver,
	navigate func(context.Context, string),
	logger zerolog.Logger,
) {
	if hasCredentials(store) {
		if _, err := resolver.Resolve(ctx); err != nil {
			logger.Warn().Err(err).Msg("session resume failed")
		}
		navigate(ctx, cfg.Routes.Dashboard)
		return
	}

	login := flow.New(cfg.Identity, cfg.Environment, cfg.State.Dir, store, broadcast, logger)
	attemptID, err := login.Start(ctx)
	if err != nil {
		if errors.Is(err, flow.ErrPopupBlocked) {
			logger.Warn().Err(err).Msg("could not open login window, please allow it and retry")
			return
		}
		logger.Error().Err(err).Msg("login start failed")
		return
	}
	logger.Info().Str("attempt_id", attemptID).Msg("waiting for login to complete in the browser")
}

func hasCredentials(store *token.Store) bool {
	_, ok := store.Get()
	return ok
}

func waitForShutdown(logger zerolog.Logger, cancelListener context.CancelFunc, scheduler *jobs.Scheduler) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	cancelListener()
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info().Msg("agent exited cleanly")
}
