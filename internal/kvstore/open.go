package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendNone     = "none"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("kvstore: unknown backend")

// Config selects and configures a backend.
type Config struct {
	Backend string

	FileDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DatabaseURL string

	S3 S3Config
}

// Opened is the result of Open. Close releases backend connections; Redis and
// DB are set only for the matching backend so callers can build health checks.
type Opened struct {
	Store   Store
	Backend string
	Redis   *redis.Client
	DB      *sql.DB
	Checker interface {
		HealthCheck(ctx context.Context) error
	}
	closers []func() error
}

// Close releases every resource held by the opened backend.
func (o *Opened) Close() error {
	var errs []error
	for _, c := range o.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the Store named by cfg.Backend. An empty name selects memory.
func Open(ctx context.Context, cfg Config) (*Opened, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return &Opened{Store: NewMemory(), Backend: BackendMemory}, nil

	case BackendNone:
		return &Opened{Store: Unavailable{}, Backend: BackendNone}, nil

	case BackendFile:
		f, err := NewFile(cfg.FileDir)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: f, Backend: BackendFile, Checker: f}, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("kvstore: ping redis %s: %w", cfg.RedisAddr, err)
		}
		return &Opened{
			Store:   NewRedis(client, cfg.RedisPrefix),
			Backend: BackendRedis,
			Redis:   client,
			closers: []func() error{client.Close},
		}, nil

	case BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := NewPostgres(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Opened{
			Store:   store,
			Backend: BackendPostgres,
			DB:      db,
			closers: []func() error{db.Close},
		}, nil

	case BackendS3:
		client, err := NewS3Client(cfg.S3)
		if err != nil {
			return nil, err
		}
		store := NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix)
		return &Opened{Store: store, Backend: BackendS3, Checker: store}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
