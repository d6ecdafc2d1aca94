// Package cache keeps constraint snapshots close to the read path and
// broadcasts when they go stale.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"barbershop/internal/events"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Channel is the Redis pub/sub channel for constraint invalidations.
const Channel = "barbershop:constraints"

// Invalidation says that constraint data changed. An empty StaffID means
// shop-wide data changed and every snapshot is stale.
type Invalidation struct {
	StaffID string    `json:"staffId,omitempty"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Notifier broadcasts invalidations to every replica.
type Notifier interface {
	Publish(ctx context.Context, inv Invalidation) error
	// Subscribe delivers invalidations until ctx is done, then closes the channel.
	Subscribe(ctx context.Context) (<-chan Invalidation, error)
}

// RedisNotifier uses Redis pub/sub.
type RedisNotifier struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewRedisNotifier(rdb *redis.Client, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		rdb:    rdb,
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, inv Invalidation) error {
	if inv.At.IsZero() {
		inv.At = time.Now()
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := n.rdb.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Invalidation, error) {
	ps := n.rdb.Subscribe(ctx, Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	msgs := ps.Channel()
	out := make(chan Invalidation, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var inv Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					n.logger.Warn().Err(err).Str("payload", msg.Payload).Msg("bad invalidation message")
					continue
				}
				select {
				case out <- inv:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LocalNotifier delivers invalidations within the process over the event bus.
type LocalNotifier struct {
	bus *events.EventBus
}

func NewLocalNotifier(bus *events.EventBus) *LocalNotifier {
	return &LocalNotifier{bus: bus}
}

func (n *LocalNotifier) Publish(_ context.Context, inv Invalidation) error {
	if inv.At.IsZero() {
		inv.At = time.Now()
	}
	return n.bus.PublishJSON(events.ConstraintsChanged, inv)
}

func (n *LocalNotifier) Subscribe(ctx context.Context) (<-chan Invalidation, error) {
	out := make(chan Invalidation, 16)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe := n.bus.Subscribe(events.ConstraintsChanged, func(e events.Event) error {
		var inv Invalidation
		if err := e.Decode(&inv); err != nil {
			return fmt.Errorf("decode invalidation: %w", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case out <- inv:
		case <-ctx.Done():
		}
		return nil
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
