// Package app wires storage, services and guards from configuration. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	corecache "crmflow/internal/core/cache"
	"crmflow/internal/config"
	"crmflow/internal/domain/access"
	"crmflow/internal/domain/auth"
	"crmflow/internal/domain/company"
	"crmflow/internal/domain/followup"
	"crmflow/internal/domain/notification"
	"crmflow/internal/domain/securityevent"
	"crmflow/internal/domain/task"
	"crmflow/internal/domain/ticket"
	"crmflow/internal/infrastructure/cache"
	"crmflow/internal/infrastructure/metrics"
	"crmflow/internal/infrastructure/storage/postgres"
	"crmflow/internal/infrastructure/storage/postgres/access_repo"
	"crmflow/internal/infrastructure/storage/postgres/auth_repo"
	"crmflow/internal/infrastructure/storage/postgres/company_repo"
	"crmflow/internal/infrastructure/storage/postgres/event_repo"
	"crmflow/internal/infrastructure/storage/postgres/followup_repo"
	"crmflow/internal/infrastructure/storage/postgres/work_repo"
	"crmflow/pkg/logger"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Pool    *postgres.Pool
	TxM     *postgres.TxManager
	Cache   corecache.Cache
	Metrics *metrics.Metrics

	Recorder      *securityevent.AsyncRecorder
	JWT           *auth.JWTService
	Auth          *auth.Service
	Companies     *company.Service
	FollowUps     *followup.Service
	Tasks         *task.Service
	Tickets       *ticket.Service
	Events        *securityevent.Service
	Permissions   *access.PermissionSource
	Gate          *access.Gate
	RateLimiter   *access.RateLimiter
	Notifications *event_repo.NotificationRepo

	closers []func()
}

// New connects to the database and the cache and builds every service.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.TxM = postgres.NewTxManager(pool)

	if cfg.Database.MigrateOnStart {
		if _, err := postgres.Migrate(ctx, a.TxM); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		a.Metrics.RegisterPool(func() (int32, int32, int32) {
			s := pool.Stats()
			return s.TotalConns, s.AcquiredConns, s.IdleConns
		})
	}

	if err := a.buildServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openCache(ctx context.Context) error {
	c := a.Config.Cache
	switch c.Type {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, c.RedisAddr, c.RedisPass, c.RedisDB, c.KeyPrefix)
		if err != nil {
			return err
		}
		a.Cache = rc
		a.closers = append(a.closers, func() { _ = rc.Close() })
	default:
		a.Cache = cache.NewMemoryCache(c.Size, c.TTL)
	}
	return nil
}

func (a *App) buildServices() error {
	cfg := a.Config

	codec, err := postgres.NewJSONCodec(0)
	if err != nil {
		return err
	}

	eventRepo := event_repo.NewSecurityEventRepo(a.TxM, codec)
	opts := []securityevent.Option{securityevent.WithWriteTimeout(cfg.Guards.EventWriteTimeout)}
	if a.Metrics != nil {
		opts = append(opts, securityevent.WithObserver(a.Metrics))
	}
	a.Recorder = securityevent.NewAsyncRecorder(eventRepo, opts...)
	a.Events = securityevent.NewService(eventRepo)

	users := auth_repo.NewUserRepo(a.TxM)
	a.Notifications = event_repo.NewNotificationRepo(a.TxM)
	notifier := notification.NewDispatcher(a.Notifications, users)

	a.JWT = auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	authCfg := auth.DefaultServiceConfig()
	authCfg.MaxLoginAttempts = cfg.Auth.MaxLoginAttempts
	authCfg.LockDuration = cfg.Auth.LockDuration
	a.Auth = auth.NewService(users, a.TxM, a.JWT, a.Recorder, authCfg)

	companies := company_repo.NewRepo(a.TxM)
	a.Companies = company.NewService(companies, a.TxM, notifier, a.Recorder)
	a.FollowUps = followup.NewService(
		followup_repo.NewFollowUpRepo(a.TxM),
		followup_repo.NewDeletionRequestRepo(a.TxM),
		a.TxM,
		notifier,
		a.Recorder,
	)
	a.Tasks = task.NewService(work_repo.NewTaskRepo(a.TxM), a.TxM)
	a.Tickets = ticket.NewService(work_repo.NewTicketRepo(a.TxM))

	a.Permissions = access.NewPermissionSource(auth_repo.NewPermissionRepo(a.TxM), a.Recorder)
	activity := access.NewSuspiciousActivityTracker(a.Cache, a.Recorder, cfg.Guards.SuspiciousWindow, cfg.Guards.SuspiciousThreshold)
	a.Gate = access.NewGate(access.Dependencies{
		Permissions: a.Permissions,
		Users:       users,
		Companies:   companies,
		Ownership:   access_repo.NewOwnershipRepo(a.TxM),
		Events:      a.Recorder,
		Activity:    activity,
	})
	if cfg.Guards.RateLimitMaxRequests > 0 {
		a.RateLimiter = access.NewRateLimiter(a.Cache, a.Recorder, cfg.Guards.RateLimitWindow, cfg.Guards.RateLimitMaxRequests)
	}
	return nil
}

// Close flushes pending security events and releases connections.
func (a *App) Close() {
	if a.Recorder != nil {
		timeout := a.Config.Guards.EventWriteTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.Recorder.Close(ctx); err != nil {
			logger.Warn(ctx, "security events not flushed", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
