package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces staging keys in a shared Redis.
const DefaultKeyPrefix = "ledgerimport:staging:"

// RedisStore is the multi-process backend. Entries expire after the
// retention TTL, and TakeOnce relies on GETDEL being atomic on the server.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. A zero ttl stores entries without expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Put stores payload as JSON, replacing any existing entry and resetting its TTL.
func (s *RedisStore) Put(ctx context.Context, key string, payload Payload) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if payload == nil {
		payload = Payload{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// TakeOnce fetches and deletes key in a single GETDEL.
func (s *RedisStore) TakeOnce(ctx context.Context, key string) (Payload, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := s.client.GetDel(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("take", err)
	}

	return decodePayload(data)
}

// Delete removes key. DEL on a missing key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// decodePayload keeps numbers as json.Number so amounts are not rounded
// through float64 on the way to the normalizer.
func decodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// DialRedis parses rawURL and returns a pinged client. Plain host:port
// addresses (docker style) are accepted as well as redis:// and rediss:// URLs.
func DialRedis(ctx context.Context, rawURL string) (redis.UniversalClient, error) {
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func parseRedisURL(rawURL string) (*redis.Options, error) {
	if rawURL == "" {
		return nil, errors.New("redis url is empty")
	}
	if !strings.Contains(rawURL, "://") {
		return &redis.Options{Addr: rawURL}, nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
