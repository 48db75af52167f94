package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobfit-backend/internal/analyses"
	"jobfit-backend/internal/analysisclient"
	googleauth "jobfit-backend/internal/auth"
	"jobfit-backend/internal/identity"
	"jobfit-backend/internal/jobs"
	"jobfit-backend/internal/queue"
	"jobfit-backend/internal/ratelimit"
	"jobfit-backend/internal/services/health"
	sharedauth "jobfit-backend/internal/shared/auth"
	"jobfit-backend/internal/shared/config"
	"jobfit-backend/internal/shared/metrics"
	"jobfit-backend/internal/shared/server"
	"jobfit-backend/internal/shared/server/middleware"
	"jobfit-backend/internal/shared/storage/db"
	"jobfit-backend/internal/shared/storage/object"
	localstore "jobfit-backend/internal/shared/storage/object/local"
	s3store "jobfit-backend/internal/shared/storage/object/s3"
	"jobfit-backend/internal/shared/telemetry"
	"jobfit-backend/internal/uploads"
	"jobfit-backend/internal/users"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *redis.Client
	Store  object.ObjectStore
	Queue  *queue.SQSClient

	Signer     *sharedauth.Signer
	Sessions   identity.SessionStore
	Resolver   identity.Resolver
	Limiter    *ratelimit.Limiter
	Reaper     *ratelimit.Reaper
	JobsRepo   jobs.Repo
	Analyses   *analyses.Service
	Cancels    *jobs.CancelRegistry
	Executor   *jobs.Executor
	Dispatcher jobs.Dispatcher
	Jobs       *jobs.Service
	Health     *health.Service
	Users      *users.Service
	GoogleAuth *googleauth.GoogleService

	local *jobs.LocalDispatcher
}

// Build prepares every dependency and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	var err error
	if app.DB, err = buildDB(ctx, cfg); err != nil {
		return nil, err
	}
	if app.Redis, err = buildRedis(ctx, cfg); err != nil {
		app.closeStores()
		return nil, err
	}
	if app.Store, err = buildStore(ctx, cfg); err != nil {
		app.closeStores()
		return nil, err
	}
	if app.Queue, err = buildQueue(ctx, cfg); err != nil {
		app.closeStores()
		return nil, err
	}
	if err := buildServices(app); err != nil {
		app.closeStores()
		return nil, err
	}
	app.Router = buildRouter(app)
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultServerOptions())
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "err": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := metrics.RegisterDBStats(sqlDB); err != nil {
		telemetry.Warn("bootstrap.db.metrics", map[string]any{"err": err.Error()})
	}
	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.redis.disabled", map[string]any{"err": err.Error()})
			return nil, nil
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (*queue.SQSClient, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
}

func buildServices(app *App) error {
	cfg := app.Config

	signer, err := sharedauth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return err
	}
	app.Signer = signer

	if app.Redis != nil {
		app.Sessions = identity.NewRedisSessionStore(app.Redis)
	} else {
		app.Sessions = identity.NewMemorySessionStore(nil)
	}
	app.Resolver = identity.Chain{
		identity.BearerResolver{Verifier: signer},
		identity.SessionResolver{Store: app.Sessions},
	}

	var limiterStore ratelimit.Store
	switch {
	case app.Redis != nil:
		limiterStore = ratelimit.NewRedisStore(app.Redis)
	case app.DB != nil:
		limiterStore = &ratelimit.PGStore{DB: app.DB}
	default:
		limiterStore = ratelimit.NewMemoryStore()
	}
	app.Limiter = ratelimit.New(limiterStore, cfg.RateLimitMax, cfg.RateLimitWindow)
	app.Reaper = &ratelimit.Reaper{
		Store:    limiterStore,
		Window:   app.Limiter.Window(),
		Interval: cfg.RateLimitReapEvery,
	}

	var (
		analysisRepo analyses.Repo
		userRepo     users.Repo
	)
	if app.DB != nil {
		app.JobsRepo = &jobs.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		app.JobsRepo = jobs.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}
	app.Analyses = &analyses.Service{Repo: analysisRepo}
	app.Users = users.NewService(userRepo)

	app.Cancels = jobs.NewCancelRegistry()
	app.Executor = &jobs.Executor{
		Repo:           app.JobsRepo,
		Objects:        app.Store,
		Analyzer:       analysisclient.New(cfg.AnalysisServiceURL, cfg.JobTimeout),
		Recorder:       app.Analyses,
		Signer:         signer,
		Cancels:        app.Cancels,
		Timeout:        cfg.JobTimeout,
		AllowAnonymous: cfg.AllowAnonymous,
	}

	if app.Queue != nil {
		app.Dispatcher = &jobs.QueueDispatcher{Client: app.Queue}
	} else {
		app.local = jobs.NewLocalDispatcher(app.Executor, cfg.JobMaxConcurrency)
		app.Dispatcher = app.local
	}

	app.Jobs = &jobs.Service{
		Repo:       app.JobsRepo,
		Limiter:    app.Limiter,
		Dispatcher: app.Dispatcher,
		Objects:    app.Store,
		Cancels:    app.Cancels,
	}

	checks := map[string]health.Checker{}
	if app.DB != nil {
		sqlDB := app.DB
		checks["database"] = health.CheckFunc(func(ctx context.Context) error { return db.Ping(ctx, sqlDB, 0) })
	}
	if app.Redis != nil {
		rdb := app.Redis
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	app.Health = health.NewService(checks)

	if strings.TrimSpace(cfg.GoogleClientID) != "" {
		app.GoogleAuth = googleauth.NewGoogleService(googleauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			UIRedirect:   cfg.UIRedirectURL,
			CookieName:   cfg.SessionCookieName,
			SessionTTL:   cfg.SessionTTL,
			SecureCookie: !cfg.IsDevLike(),
		}, app.Sessions, signer).WithProfiles(app.Users)
	}
	return nil
}

func buildRouter(app *App) *gin.Engine {
	public := []server.RouteRegistrar{ratelimit.NewHandler(app.Limiter)}
	if app.GoogleAuth != nil {
		public = append(public, app.GoogleAuth)
	}
	protected := []server.RouteRegistrar{
		jobs.NewHandler(app.Jobs, app.Analyses),
		analyses.NewHandler(app.Analyses),
		users.NewHandler(app.Users),
	}
	if s3, ok := app.Store.(*s3store.Store); ok {
		protected = append(protected, uploads.NewHandler(s3))
	}
	return server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		Resolver:    app.Resolver,
		Public:      public,
		Protected:   protected,
		PollLimiter: middleware.NewRateLimiter(nil),
		Health:      app.Health,
	})
}

// LocalDispatcher returns the in-process dispatcher, or nil in queue mode.
func (a *App) LocalDispatcher() *jobs.LocalDispatcher { return a.local }

// Close drains in-process jobs, then releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.local != nil {
		if err := a.local.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain jobs: %w", err))
		}
	}
	errs = append(errs, a.closeStores())
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
