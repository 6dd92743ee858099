package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"openedu/client/internal/api"
	"openedu/client/internal/config"
	"openedu/client/internal/signal"
	"openedu/client/internal/token"
)

const staleFlagAge = 24 * time.Hour

// Scheduler runs the agent's background maintenance: proactive token
// refresh ahead of expiry and cleanup of stale signal flags.
type Scheduler struct {
	cron   *cron.Cron
	client *api.Client
	store  *token.Store
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewScheduler(client *api.Client, store *token.Store, cfg *config.AppConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		client: client,
		store:  store,
		cfg:    cfg,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Refresh.CheckSchedule, s.refreshCheck); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.cleanupFlags); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish, bounded at five seconds.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
}

// refreshCheck renews the access token before it expires so foreground
// requests rarely hit a 401 at all. The refresh rides the client's
// single-flight cycle, so it can never race a 401-triggered one.
func (s *Scheduler) refreshCheck() {
	creds, ok := s.store.Get()
	if !ok || creds.RefreshToken == "" {
		return
	}
	if !token.ExpiresWithin(creds.AccessToken, s.cfg.Refresh.Lead) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Backend.RequestTimeout)
	defer cancel()

	if err := s.client.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("proactive refresh failed")
	}
}

func (s *Scheduler) cleanupFlags() {
	if err := signal.ClearStaleFlag(s.cfg.State.Dir, staleFlagAge); err != nil {
		s.log.Error().Err(err).Msg("cleanup auth flag failed")
	}
}
