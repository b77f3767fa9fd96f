package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/config"
	"github.com/jwulff/bptrack/internal/dashboard"
	"github.com/jwulff/bptrack/internal/monitor"
	"github.com/jwulff/bptrack/internal/storage"
	"github.com/jwulff/bptrack/internal/storage/redis"
	"github.com/jwulff/bptrack/internal/storage/sqlite"
)

var errNotSignedIn = errors.New("not signed in, run 'bptrack login' first")

const redisPingTimeout = 5 * time.Second

// ProvideStore opens redis when configured and the sqlite file otherwise.
// Redis must answer a ping before the store is returned.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	var store storage.Store
	if cfg.Storage.RedisAddr != "" {
		rs := redis.NewStore(redis.NewClient(redis.Options{Addr: cfg.Storage.RedisAddr}), redis.DefaultPrefix, cfg.Storage.RedisTTL)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis at %s is unreachable: %w", cfg.Storage.RedisAddr, err)
		}
		logger.Info("using redis store", zap.String("addr", cfg.Storage.RedisAddr))
		store = rs
	} else {
		fs, err := sqlite.NewFileStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.Storage.Path))
		store = fs
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// ProvideSession returns the session saved by 'bptrack login'. With redis
// the session is copied over from the sqlite file on first use.
func ProvideSession(store storage.Store, cfg *config.Config) (*storage.Session, error) {
	ctx := context.Background()

	session, err := store.GetSession(ctx)
	switch {
	case err == nil:
		return session, nil
	case !storage.IsNotFound(err):
		return nil, err
	case cfg.Storage.RedisAddr == "":
		return nil, errNotSignedIn
	}

	local, err := sqlite.NewFileStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	defer local.Close()

	session, err = local.GetSession(ctx)
	if storage.IsNotFound(err) {
		return nil, errNotSignedIn
	}
	if err != nil {
		return nil, err
	}
	if err := store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ProvideClient creates a backend client using the session token.
func ProvideClient(cfg *config.Config, logger *zap.Logger, session *storage.Session) *api.Client {
	client := api.NewClient(api.Config{
		BaseURL:    cfg.API.URL,
		APIKey:     cfg.API.APIKey,
		Timeout:    cfg.API.Timeout,
		RetryCount: 2,
	}, logger)
	client.SetToken(session.Token)
	return client
}

// ProvideMonitor creates the monitor for the signed-in user.
func ProvideMonitor(client *api.Client, store storage.Store, logger *zap.Logger, session *storage.Session) *monitor.Monitor {
	return monitor.New(client, store, logger, monitor.Options{
		Person: session.User.Person(),
		Owner:  strconv.FormatInt(session.User.ID, 10),
	})
}

// ProvideHandler creates the dashboard routes.
func ProvideHandler(m *monitor.Monitor, logger *zap.Logger, cfg *config.Config) *dashboard.Handler {
	return dashboard.NewHandler(m, logger, dashboard.Options{
		Window:   cfg.Window,
		Location: cfg.Location(),
		Title:    "Blood Pressure - " + m.Person().FullName,
	})
}

func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, m *monitor.Monitor, h *dashboard.Handler) {
	srv := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if _, err := m.Restore(startCtx); err != nil {
				logger.Warn("failed to restore cached readings", zap.Error(err))
			}
			if err := m.Refresh(startCtx); err != nil {
				logger.Warn("initial refresh failed, serving cached readings", zap.Error(err))
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("dashboard server failed", zap.Error(err))
				}
			}()
			if cfg.Dashboard.RefreshInterval > 0 {
				go refreshLoop(ctx, m, cfg.Dashboard.RefreshInterval, logger)
			}

			logger.Info("dashboard listening", zap.String("url", "http://"+ln.Addr().String()))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := srv.Shutdown(stopCtx); err != nil {
				logger.Error("failed to stop dashboard", zap.Error(err))
				return err
			}
			logger.Info("dashboard stopped gracefully")
			return nil
		},
	})
}

// refreshLoop keeps the reading set current until ctx is cancelled.
func refreshLoop(ctx context.Context, m *monitor.Monitor, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, interval)
			if err := m.Refresh(refreshCtx); err != nil {
				logger.Warn("background refresh failed", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
