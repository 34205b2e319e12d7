// Package staging holds import payloads produced out of band until the
// importer that is waiting for them takes them.
//
// An entry is written once by a producer (the extraction webhook or a
// pre-queued link import) and read at most once: TakeOnce returns the
// payload and removes it in one atomic step, so two pollers racing on the
// same key never both receive it. Entries that nobody takes are bounded by
// a retention ceiling enforced by the backend (Redis TTL) or by a Sweeper.
package staging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Payload is an ordered sequence of producer-shaped records.
// It is not validated against the transaction schema.
type Payload []map[string]any

var (
	// ErrNotFound means no entry exists for the key. It is not a failure:
	// a poller treats it as "no data yet".
	ErrNotFound = errors.New("staged import not found")

	// ErrInvalidKey is returned for keys outside MaxKeyLength or the allowed alphabet.
	ErrInvalidKey = errors.New("invalid staging key")

	// ErrUnavailable wraps every error from the underlying storage medium.
	ErrUnavailable = errors.New("staging store unavailable")
)

// MaxKeyLength bounds correlation keys accepted from the network.
const MaxKeyLength = 200

var keyRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ValidateKey checks that key can be used as a correlation key.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength || !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, truncate(key, 40))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Store is a key-addressed, write-once-read-once holding area.
// Implementations must be safe for concurrent use across keys, and
// TakeOnce on a single key must be linearizable.
type Store interface {
	// Put stores payload under key, replacing any existing entry.
	Put(ctx context.Context, key string, payload Payload) error

	// TakeOnce returns the payload for key and removes it.
	// It returns ErrNotFound when no entry exists.
	TakeOnce(ctx context.Context, key string) (Payload, error)

	// Delete removes key whether or not it was read. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) error
}

// Evictor removes entries created before a cutoff.
type Evictor interface {
	Evict(ctx context.Context, olderThan time.Time) (int64, error)
}

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Redis     redis.UniversalClient
	DB        DBTX
	Retention time.Duration
}

// DBTX is the subset of pgx used by PostgresStore. *pgxpool.Pool,
// *pgx.Conn, and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New builds the store named by opts.Backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, errors.New("redis staging backend requires a redis client")
		}
		return NewRedisStore(opts.Redis, opts.Retention), nil
	case BackendPostgres:
		if opts.DB == nil {
			return nil, errors.New("postgres staging backend requires a database")
		}
		return NewPostgresStore(opts.DB), nil
	default:
		return nil, fmt.Errorf("unknown staging backend %q", opts.Backend)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
