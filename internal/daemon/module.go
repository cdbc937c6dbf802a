package daemon

import (
	"context"
	"os"
	"sync"

	"github.com/wagate-io/wagate/internal/bus"
	"github.com/wagate-io/wagate/internal/config"
	"github.com/wagate-io/wagate/internal/engine"
	"github.com/wagate-io/wagate/internal/lock"
	"github.com/wagate-io/wagate/internal/logging"
	"github.com/wagate-io/wagate/internal/manager"
	"github.com/wagate-io/wagate/internal/media"
	"github.com/wagate-io/wagate/internal/reconnect"
	"github.com/wagate-io/wagate/internal/session"
	"github.com/wagate-io/wagate/internal/status"
	"github.com/wagate-io/wagate/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the command-line overrides passed to the fx module.
type Params struct {
	Identity string // overrides the config default identity; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLocks,
			provideStore,
			provideEngineFactory,
			provideRegistry,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := session.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		// First run: write the resolved defaults so operators have a file to edit.
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
	}
	if p.Identity != "" {
		cfg.DefaultIdentity = p.Identity
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := session.EnsureDir(cfg.DefaultIdentity); err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(cfg.DefaultIdentity), cfg.DefaultIdentity)
}

func provideBus() *bus.Bus {
	return bus.New()
}

// sessionLocks holds one flock per instantiated session identity, so every
// manager the registry builds runs under the single-owner lock, not only the
// default identity.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]*lock.Lock
}

func provideLocks() *sessionLocks {
	return &sessionLocks{held: make(map[string]*lock.Lock)}
}

func (s *sessionLocks) acquire(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.held[identity]; ok {
		return nil
	}
	l, err := lock.Acquire(session.LockPath(identity))
	if err != nil {
		return err
	}
	s.held[identity] = l
	return nil
}

func (s *sessionLocks) releaseAll(logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for identity, l := range s.held {
		if err := l.Release(); err != nil {
			logger.Warn("error releasing session lock",
				zap.String("identity", identity), zap.Error(err))
		}
	}
	s.held = make(map[string]*lock.Lock)
}

func provideStore(logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideEngineFactory() engine.Factory {
	return engine.NewWhatsmeowFactory()
}

func provideRegistry(cfg *config.Config, factory engine.Factory, db *store.DB, b *bus.Bus, locks *sessionLocks, logger *zap.Logger) *manager.Registry {
	opts := manager.Options{
		QRWindow: cfg.QRWindow(),
		Drain:    cfg.EngineDrain(),
		Policy: reconnect.Policy{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Delay:       cfg.ReconnectDelay(),
		},
	}
	return manager.NewRegistry(func(identity string) (*manager.Manager, error) {
		if err := session.EnsureDir(identity); err != nil {
			return nil, err
		}
		if err := locks.acquire(identity); err != nil {
			return nil, err
		}
		mediaDir := cfg.MediaDir
		if mediaDir == "" {
			mediaDir = session.MediaDir(identity)
		}
		return manager.New(manager.Params{
			Identity: identity,
			Factory:  factory,
			DB:       db,
			Bus:      b,
			Machine:  status.NewMachine(identity, b),
			Fetcher:  media.NewFetcher(mediaDir, logger),
			Logger:   logger.With(zap.String("session", identity)),
			Options:  opts,
		}), nil
	})
}

func registerLifecycle(lc fx.Lifecycle, reg *manager.Registry, db *store.DB, locks *sessionLocks, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Claim the default identity up front so a second daemon instance
			// fails fast instead of at the first connect.
			m, err := reg.Get(cfg.DefaultIdentity)
			if err != nil {
				return err
			}

			// Resume the default identity when a persisted archive exists;
			// otherwise wait for an explicit connect command.
			rec, err := db.LoadSession(cfg.DefaultIdentity)
			if err != nil {
				logger.Warn("loading persisted session failed", zap.Error(err))
			}
			if rec != nil && len(rec.Archive) > 0 {
				go func() {
					if _, err := m.Connect(context.Background()); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no persisted session, login required",
					zap.String("identity", cfg.DefaultIdentity))
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("stopping sessions", zap.Strings("identities", reg.Identities()))
			reg.DisconnectAll()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			locks.releaseAll(logger)
			logger.Info("daemon stopped")
			return nil
		},
	})
}
