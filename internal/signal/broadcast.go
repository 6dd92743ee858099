package signal

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const authDoneChannel = "openedu:auth:done"

// Broadcast is the message-passing path between agent instances. It is an
// interface so tests can run an in-memory implementation.
type Broadcast interface {
	Publish(ctx context.Context, attemptID string) error
	Subscribe(ctx context.Context) (<-chan string, func(), error)
}

type RedisBroadcast struct {
	client *redis.Client
}

func NewRedisBroadcast(client *redis.Client) *RedisBroadcast {
	return &RedisBroadcast{client: client}
}

func (b *RedisBroadcast) Publish(ctx context.Context, attemptID string) error {
	return b.client.Publish(ctx, authDoneChannel, attemptID).Err()
}

func (b *RedisBroadcast) Subscribe(ctx context.Context) (<-chan string, func(), error) {
	sub := b.client.Subscribe(ctx, authDoneChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }, nil
}
