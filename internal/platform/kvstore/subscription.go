package kvstore

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

type Message struct {
	Channel string
	Payload string
}

// Subscription forwards pub/sub messages until the subscribing context ends
// or Close is called.
type Subscription struct {
	ps  *goredis.PubSub
	out chan Message
}

func (s *Subscription) Messages() <-chan Message { return s.out }

func (s *Subscription) Close() error {
	if s == nil || s.ps == nil {
		return nil
	}
	return s.ps.Close()
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("kvstore: no channels")
	}
	ps := c.rdb.Subscribe(ctx, channels...)

	rctx, cancel := c.bound(ctx)
	_, err := ps.Receive(rctx)
	cancel()
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &Subscription{ps: ps, out: make(chan Message, 64)}
	go func() {
		defer close(sub.out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-in:
				if !ok || m == nil {
					return
				}
				select {
				case sub.out <- Message{Channel: m.Channel, Payload: m.Payload}:
				case <-ctx.Done():
					_ = ps.Close()
					return
				}
			}
		}
	}()
	return sub, nil
}
