package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/internal/log"
)

const (
	redisKeyPrefix = "restyle"
	// maxTxRetries bounds optimistic transaction retries in Redis.Set.
	maxTxRetries = 16
)

// ErrTxConflict is returned by Redis.Set when concurrent writers kept
// invalidating the transaction.
var ErrTxConflict = errors.New("transaction conflict")

// Redis is a store backed by Redis. Each key is stored as JSON under
// restyle:<namespace>:<key>; change sets are published as JSON on
// restyle:<namespace>:changes in the same transaction as the write.
type Redis struct {
	client    *redis.Client
	namespace string
}

// NewRedis connects to the Redis server at redisURL.
func NewRedis(ctx context.Context, redisURL, namespace string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, namespace), nil
}

// NewRedisWithClient returns a store using an existing client.
func NewRedisWithClient(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Redis{client: client, namespace: namespace}
}

// Namespace returns the namespace of the store.
func (r *Redis) Namespace() string {
	return r.namespace
}

func (r *Redis) key(name string) string {
	return redisKeyPrefix + ":" + r.namespace + ":" + name
}

// Channel returns the pub/sub channel change sets are published on.
func (r *Redis) Channel() string {
	return r.key("changes")
}

func (r *Redis) keys() []string {
	return []string{
		r.key(restyle.KeyRules),
		r.key(restyle.KeyCustomCSS),
		r.key(restyle.KeyAllowedDomains),
	}
}

// Get implements restyle.ConfigStore.
func (r *Redis) Get(ctx context.Context) (restyle.Config, error) {
	return r.read(ctx, r.client)
}

// getter is implemented by both *redis.Client and *redis.Tx.
type getter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (r *Redis) read(ctx context.Context, c getter) (restyle.Config, error) {
	var cfg restyle.Config

	vals, err := c.MGet(ctx, r.keys()...).Result()
	if err != nil {
		return cfg, fmt.Errorf("read configuration: %w", err)
	}

	targets := []any{&cfg.Rules, &cfg.CustomCSS, &cfg.AllowedDomains}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(s), targets[i]); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", r.keys()[i], err)
		}
	}

	return cfg, nil
}

// Set implements Store. The write and the change notification are one
// MULTI/EXEC transaction guarded by WATCH on the namespace's keys.
func (r *Redis) Set(ctx context.Context, patch restyle.Patch) error {
	var cs restyle.ChangeSet

	txf := func(tx *redis.Tx) error {
		cur, err := r.read(ctx, tx)
		if err != nil {
			return err
		}

		var next restyle.Config
		next, cs = patch.Apply(cur)
		if cs.Empty() {
			return nil
		}

		writes := map[string]any{}
		if cs.Rules != nil {
			writes[r.key(restyle.KeyRules)] = next.Rules
		}
		if cs.CustomCSS != nil {
			writes[r.key(restyle.KeyCustomCSS)] = next.CustomCSS
		}
		if cs.AllowedDomains != nil {
			writes[r.key(restyle.KeyAllowedDomains)] = next.AllowedDomains
		}

		msg, err := json.Marshal(cs)
		if err != nil {
			return fmt.Errorf("marshal change set: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, v := range writes {
				b, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("marshal %s: %w", key, err)
				}
				pipe.Set(ctx, key, b, 0)
			}
			pipe.Publish(ctx, r.Channel(), msg)

			return nil
		})

		return err
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, r.keys()...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write configuration: %w", err)
		}

		if !cs.Empty() {
			log.WithContext(ctx).Debug("wrote configuration",
				slog.String("namespace", r.namespace),
				slog.Any("keys", cs.Keys()),
			)
		}

		return nil
	}

	return ErrTxConflict
}

// Subscribe implements restyle.ConfigStore. The subscription is confirmed
// before Subscribe returns, so writes made afterwards are not missed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan restyle.ChangeSet, error) {
	pubsub := r.client.Subscribe(ctx, r.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", r.Channel(), err)
	}

	out := make(chan restyle.ChangeSet, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		logger := log.WithContext(ctx)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var cs restyle.ChangeSet
				if err := json.Unmarshal([]byte(msg.Payload), &cs); err != nil {
					logger.Warn("drop malformed change notification",
						slog.String("channel", msg.Channel),
						slog.Any("error", err),
					)
					continue
				}
				if cs.Empty() {
					continue
				}
				select {
				case out <- cs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
