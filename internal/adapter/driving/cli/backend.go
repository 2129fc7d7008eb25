package cli

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/scipguard/internal/adapter/driven/filestore"
	redisadapter "github.com/ericfisherdev/scipguard/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/scipguard/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/scipguard/internal/config"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// openSessionKV builds the configured session backend. The returned close
// function releases its connections.
func openSessionKV(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driven.SessionKV, func() error, error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Debug("session backend ready", "backend", cfg.SessionBackend, "addr", cfg.Redis.Addr)
		return redisadapter.NewSessionKV(client, cfg.Redis.Prefix), client.Close, nil

	case config.BackendFile:
		path := cfg.SessionFile
		if path == "" {
			path = filestore.DefaultPath()
		}
		logger.Debug("session backend ready", "backend", cfg.SessionBackend, "path", path)
		return filestore.NewSessionFile(path), func() error { return nil }, nil

	default:
		key, err := cfg.EncryptionKey()
		if err != nil {
			return nil, nil, err
		}

		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		repo, err := sqliteadapter.NewSessionKVRepo(db, key)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Debug("session backend ready", "backend", cfg.SessionBackend, "path", db.Path(), "encrypted", repo.Encrypted())
		return repo, db.Close, nil
	}
}
