// Package cli wires configuration, storage and the session manager for the
// arbor commands.
package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

// LockPrefix namespaces distributed lock keys.
const LockPrefix = "arbor:"

// Options are the global command-line settings.
type Options struct {
	Dir        string
	ConfigPath string
	LogLevel   string
	// Hooks are combined with the logging and metrics hooks.
	Hooks []domain.LifecycleHooks
}

// App is everything a command needs.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Manager *session.Manager
	Metrics *observability.Metrics

	closers []func() error
}

// Close releases the storage backends.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewApp loads the configuration for opts.Dir and builds the manager.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	path := opts.ConfigPath
	if path == "" {
		path = filepath.Join(opts.Dir, config.DefaultFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logging.New(level),
		Metrics: observability.NewMetrics(),
	}

	store, locker, err := app.openStore(ctx, opts.Dir)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	store, err = app.wrapStore(store)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	mgrOpts := []session.Option{
		session.WithLogger(app.Logger),
		session.WithHooks(observability.Combine(append([]domain.LifecycleHooks{
			observability.LogHooks(app.Logger),
			app.Metrics.Hooks(),
		}, opts.Hooks...)...)),
		session.WithMaxNodes(cfg.History.MaxNodes),
		session.WithAutosave(cfg.History.Autosave),
		session.WithTreeOptions(history.WithStrict(cfg.History.Strict)),
		session.WithLockTTL(cfg.Lock.TTL),
	}
	if locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(locker))
	}
	app.Manager = session.NewManager(store, mgrOpts...)
	return app, nil
}

func (a *App) openStore(ctx context.Context, dir string) (ports.HistoryStore, ports.DistributedLocker, error) {
	sc := a.Config.Store
	switch sc.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil, nil

	case config.DriverFile:
		var opts config.FileOptions
		if err := sc.DecodeOptions(&opts); err != nil {
			return nil, nil, err
		}
		if opts.Dir == "" {
			opts.Dir = filepath.Join(".arbor", "documents")
		}
		return file.New(resolve(dir, opts.Dir)), nil, nil

	case config.DriverSQLite:
		var opts config.SQLiteOptions
		if err := sc.DecodeOptions(&opts); err != nil {
			return nil, nil, err
		}
		if opts.Path == "" {
			opts.Path = filepath.Join(".arbor", "arbor.sqlite")
		}
		store, err := sqlite.Open(ctx, resolve(dir, opts.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil, nil

	case config.DriverRedis:
		var opts config.RedisOptions
		if err := sc.DecodeOptions(&opts); err != nil {
			return nil, nil, err
		}
		if opts.Addr == "" {
			opts.Addr = "localhost:6379"
		}
		client := backend.NewClient(&backend.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		a.closers = append(a.closers, client.Close)

		storeOpts := []redis.Option{redis.WithTTL(opts.TTL)}
		if opts.Prefix != "" {
			storeOpts = append(storeOpts, redis.WithPrefix(opts.Prefix))
		}
		var locker ports.DistributedLocker
		if a.Config.Lock.Distributed {
			locker = redis.NewLocker(client, LockPrefix)
		}
		return redis.NewFromClient(client, storeOpts...), locker, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// wrapStore applies the configured middlewares. Redaction runs first so the
// quota and the ciphertext see the masked record.
func (a *App) wrapStore(store ports.HistoryStore) (ports.HistoryStore, error) {
	var mws []middleware.Middleware
	sec := a.Config.Security

	if len(sec.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(sec.RedactPatterns))
	}
	if sec.EncryptionKeyEnv != "" {
		active, err := keyFromEnv(sec.EncryptionKeyEnv)
		if err != nil {
			return nil, err
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, name := range sec.FallbackKeyEnvs {
			k, err := keyFromEnv(name)
			if err != nil {
				return nil, err
			}
			enc.FallbackKeys = append(enc.FallbackKeys, k)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	if a.Config.History.QuotaBytes > 0 {
		mws = append(mws, middleware.NewQuotaMiddleware(a.Config.History.QuotaBytes))
	}
	return middleware.Chain(store, mws...), nil
}

func keyFromEnv(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("encryption key variable %s is not set", name)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("encryption key in %s is not valid base64: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key in %s must be 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
