// Package app composes the client: configuration, storage, gateway, live
// channel, session store, synchronizer, and terminal UI, wired through fx.
package app

import (
	"context"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/lock"
	"github.com/parley-chat/parley/internal/logging"
	"github.com/parley-chat/parley/internal/profile"
	"github.com/parley-chat/parley/internal/status"
	"github.com/parley-chat/parley/internal/store"
	intsync "github.com/parley-chat/parley/internal/sync"
	"github.com/parley-chat/parley/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	// Headless skips the terminal UI; the supervisor still connects the
	// live channel so the process can run as a notifier.
	Headless bool
}

// Module composes all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("parley",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideGateway,
			provideSession,
			provideStateMachine,
			provideChannel,
			provideEngine,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	// The terminal owns stderr while the UI runs.
	if p.Headless {
		return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
	}
	return logging.NewFileOnly(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) *gateway.Gateway {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	return gateway.New(cfg.ServerURL, cfg.AppID, timeout, logger)
}

func provideSession(db *store.DB, gw *gateway.Gateway, b *bus.Bus, logger *zap.Logger) *auth.Store {
	return auth.New(db, gw, b, logger)
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideChannel(cfg *config.Config, m *status.Machine, b *bus.Bus, logger *zap.Logger) *channel.Channel {
	return channel.New(cfg.ServerURL, cfg.AppID, m, b, logger)
}

func provideEngine(ch *channel.Channel, gw *gateway.Gateway, session *auth.Store, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	opts := intsync.Options{
		HistoryPageSize: cfg.HistoryPageSize,
		MarkReadOnView:  cfg.MarkReadOnView,
	}
	return intsync.NewEngine(ch, gw, session, b, opts, logger)
}

func provideApp(p Params, engine *intsync.Engine, session *auth.Store, b *bus.Bus) *tui.App {
	return tui.NewApp(engine, session, b, p.ProfileName)
}

func registerLifecycle(lc fx.Lifecycle, sh fx.Shutdowner, p Params, ui *tui.App, lk *lock.Lock, engine *intsync.Engine, ch *channel.Channel, session *auth.Store, b *bus.Bus, logger *zap.Logger) {
	super := newSupervisor(ch, session, b, logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			super.Start(context.Background())

			// Restore persisted credentials; the supervisor reacts to the
			// resulting session event and dials the live channel.
			state := session.Restore()
			logger.Info("session restored", zap.String("state", string(state)))

			if !p.Headless {
				go func() {
					if err := ui.Run(); err != nil {
						logger.Error("ui error", zap.Error(err))
					}
					_ = sh.Shutdown()
				}()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if !p.Headless {
				ui.Stop()
			}
			super.Stop()
			engine.Stop()
			ch.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
