package recovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore keeps recovery keys for ttl; zero keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, device string, st PersistedState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode recovery state")
	}
	if err := s.client.Set(ctx, stateKey(device), payload, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save recovery state for %s", device)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, device string) (PersistedState, error) {
	payload, err := s.client.Get(ctx, stateKey(device)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PersistedState{}, ErrNoState
	}
	if err != nil {
		return PersistedState{}, errors.Wrapf(err, "load recovery state for %s", device)
	}
	var st PersistedState
	if err := json.Unmarshal(payload, &st); err != nil {
		return PersistedState{}, errors.Wrap(err, "decode recovery state")
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, device string) error {
	return errors.Wrap(s.client.Del(ctx, stateKey(device)).Err(), "delete recovery state")
}

func (s *RedisStore) MarkEnded(ctx context.Context, device string) error {
	return errors.Wrap(s.client.Set(ctx, endedKey(device), "1", s.ttl).Err(), "mark session ended")
}

func (s *RedisStore) Ended(ctx context.Context, device string) (bool, error) {
	n, err := s.client.Exists(ctx, endedKey(device)).Result()
	if err != nil {
		return false, errors.Wrap(err, "read ended flag")
	}
	return n > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, device string) error {
	return errors.Wrap(s.client.Del(ctx, stateKey(device), endedKey(device)).Err(), "clear recovery state")
}

// recovery:{device}:state
func stateKey(device string) string {
	return "recovery:" + device + ":state"
}

func endedKey(device string) string {
	return "recovery:" + device + ":ended"
}
