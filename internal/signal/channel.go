package signal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Announce emits both delivery paths for one finished login. Neither path
// alone is reliable, so both fire; listeners collapse duplicates. One path
// succeeding is enough, per-path failures are logged and swallowed.
func Announce(ctx context.Context, broadcast Broadcast, stateDir, attemptID string, log zerolog.Logger) {
	if err := RaiseFlag(stateDir, attemptID); err != nil {
		log.Warn().Err(err).Msg("raise auth flag failed")
	}
	if broadcast != nil {
		if err := broadcast.Publish(ctx, attemptID); err != nil {
			log.Warn().Err(err).Msg("publish auth signal failed")
		}
	}
}

// Listener subscribes to both delivery paths and invokes finalize exactly
// once per login attempt: at-least-once delivery, exactly-once effect.
type Listener struct {
	broadcast Broadcast
	stateDir  string
	poll      time.Duration
	finalize  func(ctx context.Context, attemptID string)
	log       zerolog.Logger

	mu        sync.Mutex
	processed map[string]bool
	lastFlag  string
}

func NewListener(broadcast Broadcast, stateDir string, poll time.Duration, finalize func(ctx context.Context, attemptID string), log zerolog.Logger) *Listener {
	return &Listener{
		broadcast: broadcast,
		stateDir:  stateDir,
		poll:      poll,
		finalize:  finalize,
		log:       log,
		processed: map[string]bool{},
	}
}

// Run blocks until ctx is done. A flag already present at start is stale
// and never fires.
func (l *Listener) Run(ctx context.Context) error {
	if content, err := ReadFlag(l.stateDir); err == nil {
		l.lastFlag = content
	}

	var messages <-chan string
	if l.broadcast != nil {
		ch, closeFn, err := l.broadcast.Subscribe(ctx)
		if err != nil {
			// The flag path still works without the broadcast.
			l.log.Warn().Err(err).Msg("auth signal subscribe failed")
		} else {
			defer closeFn()
			messages = ch
		}
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case attemptID, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			l.fire(ctx, attemptID)

		case <-ticker.C:
			l.checkFlag(ctx)
		}
	}
}

func (l *Listener) checkFlag(ctx context.Context) {
	content, err := ReadFlag(l.stateDir)
	if err != nil || content == "" {
		return
	}

	l.mu.Lock()
	changed := content != l.lastFlag
	l.lastFlag = content
	l.mu.Unlock()

	if changed {
		l.fire(ctx, attemptFromFlag(content))
	}
}

// fire runs finalize once per attempt no matter how many paths deliver.
func (l *Listener) fire(ctx context.Context, attemptID string) {
	if attemptID == "" {
		return
	}

	l.mu.Lock()
	if l.processed[attemptID] {
		l.mu.Unlock()
		return
	}
	l.processed[attemptID] = true
	l.mu.Unlock()

	l.log.Debug().Str("attempt_id", attemptID).Msg("auth signal received")
	l.finalize(ctx, attemptID)
}
