// yarex/pkg/store/redis_store.go

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rgehrsitz/yarex/pkg/logging"
)

const (
	keyPrefix = "rule:"
	// IndexKey is the set of every stored rule name.
	IndexKey = "rules"
	// UpdatesChannel carries the name of every rule saved or deleted.
	UpdatesChannel = "rule_updates"
)

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		logging.Logger.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to connect to Redis", err, map[string]interface{}{"addr": addr})
	}

	logging.Logger.Info().Msg("Successfully connected to Redis")
	return &RedisStore{client: client, now: time.Now}, nil
}

func ruleKey(name string) string {
	return keyPrefix + name
}

// SaveRule stores rec under its name, keeping the ID of any record it
// replaces, and announces the name on UpdatesChannel.
func (s *RedisStore) SaveRule(ctx context.Context, rec *Record) error {
	if rec.Name == "" {
		return logging.NewError(logging.ErrorTypeStore, "record has no name", nil, nil)
	}
	if rec.ID == uuid.Nil {
		if existing, err := s.GetRule(ctx, rec.Name); err == nil {
			rec.ID = existing.ID
		} else if !errors.Is(err, ErrNotFound) {
			return err
		} else {
			rec.ID = uuid.New()
		}
	}
	rec.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		logging.Logger.Error().Err(err).Str("rule", rec.Name).Msg("Failed to marshal rule record")
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ruleKey(rec.Name), data, 0)
		pipe.SAdd(ctx, IndexKey, rec.Name)
		pipe.Publish(ctx, UpdatesChannel, rec.Name)
		return nil
	})
	if err != nil {
		logging.Logger.Error().Err(err).Str("rule", rec.Name).Msg("Failed to save rule record")
		return logging.NewError(logging.ErrorTypeStore, "failed to save rule record", err, map[string]interface{}{"rule": rec.Name})
	}

	logging.Logger.Debug().Str("rule", rec.Name).Str("id", rec.ID.String()).Msg("Saved rule record")
	return nil
}

func (s *RedisStore) GetRule(ctx context.Context, name string) (*Record, error) {
	data, err := s.client.Get(ctx, ruleKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		logging.Logger.Debug().Str("rule", name).Msg("Rule record not found in Redis")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		logging.Logger.Error().Err(err).Str("rule", name).Msg("Failed to get rule record from Redis")
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to get rule record", err, map[string]interface{}{"rule": name})
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Logger.Error().Err(err).Str("rule", name).Msg("Failed to unmarshal rule record")
		return nil, err
	}
	return &rec, nil
}

// ListRules returns every stored rule name, sorted.
func (s *RedisStore) ListRules(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, IndexKey).Result()
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to list rule records", err, nil)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) DeleteRule(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, ruleKey(name))
		pipe.SRem(ctx, IndexKey, name)
		pipe.Publish(ctx, UpdatesChannel, name)
		return nil
	})
	if err != nil {
		return logging.NewError(logging.ErrorTypeStore, "failed to delete rule record", err, map[string]interface{}{"rule": name})
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	logging.Logger.Info().Str("rule", name).Msg("Deleted rule record")
	return nil
}

// Subscribe listens on UpdatesChannel.
func (s *RedisStore) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	logging.Logger.Info().Str("channel", UpdatesChannel).Msg("Subscribing to rule updates")

	pubsub := s.client.Subscribe(ctx, UpdatesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		logging.Logger.Error().Err(err).Msg("Failed to subscribe to rule updates")
		return nil, err
	}
	return pubsub, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
