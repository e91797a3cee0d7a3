package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timetable/timetable-sync/internal/config"
	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/db/repository"
	"github.com/timetable/timetable-sync/internal/events"
	"github.com/timetable/timetable-sync/internal/freshness"
	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/handler"
	"github.com/timetable/timetable-sync/internal/lock"
	"github.com/timetable/timetable-sync/internal/metrics"
	"github.com/timetable/timetable-sync/internal/middleware"
	"github.com/timetable/timetable-sync/internal/model"
	"github.com/timetable/timetable-sync/internal/quota"
	"github.com/timetable/timetable-sync/internal/redisconn"
	"github.com/timetable/timetable-sync/internal/source/twitch"
	"github.com/timetable/timetable-sync/internal/source/youtube"
	"github.com/timetable/timetable-sync/internal/syncer"
	"github.com/timetable/timetable-sync/internal/timetable"
	"github.com/timetable/timetable-sync/pkg/logger"
)

const serviceName = "timetable-syncer"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Service: serviceName,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger.Log)
	stop()
	if err != nil {
		logger.Log.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Log.Info("service stopped gracefully")
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	pool, err := db.NewPool(ctx, &db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConnections),
		MinConns:        int32(cfg.Database.MinConnections),
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(pool)

	if err := db.ApplySchema(ctx, pool); err != nil {
		return err
	}
	log.Info("database connection established", zap.Int32("max_conns", pool.Config().MaxConns))

	store := repository.NewStore(pool)

	rdb, err := redisconn.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	tt := timetable.NewRedisStore(rdb, cfg.Redis.TimetablePrefix, cfg.Redis.TimetableTTL, log.Named("timetable"))
	quotaManager := quota.NewManager(store.Quota(), cfg.YouTube.QuotaDailyLimit, cfg.YouTube.QuotaThresholdPercent, log.Named("quota"))

	var publisher *events.MessagePublisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = events.NewMessagePublisher(&cfg.RabbitMQ, log.Named("events"))
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer publisher.Close()
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	opts := []syncer.Option{
		syncer.WithTimetablePublisher(tt),
		syncer.WithMetrics(m),
		syncer.WithLogger(log.Named("syncer")),
	}

	if cfg.YouTube.APIKey != "" {
		ytOpts := []youtube.Option{youtube.WithQuota(quotaManager), youtube.WithLogger(log.Named("youtube"))}
		if cfg.YouTube.FeedFallback {
			ytOpts = append(ytOpts, youtube.WithFeed(youtube.NewFeedClient(nil, cfg.YouTube.FeedURL)))
		}
		yt, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, ytOpts)
		if err != nil {
			return err
		}
		opts = append(opts, syncer.WithSubscriptionSource(yt), syncer.WithContentSource(model.PlatformYouTube, yt))
	}

	if cfg.Twitch.ClientID != "" {
		tw, err := twitch.NewClient(ctx, cfg.Twitch.ClientID, cfg.Twitch.AccessToken,
			twitch.WithBaseURL(cfg.Twitch.BaseURL),
			twitch.WithRateLimit(cfg.Twitch.RequestsPerSecond, cfg.Twitch.Burst),
			twitch.WithLogger(log.Named("twitch")),
		)
		if err != nil {
			return err
		}
		opts = append(opts, syncer.WithFollowingSource(tw), syncer.WithContentSource(model.PlatformTwitch, tw))
	}

	var (
		collector *gc.Collector
		gcRunner  handler.GCRunner
	)
	if cfg.GC.Enabled {
		gcOpts := []gc.Option{
			gc.WithMetrics(m),
			gc.WithTimeout(cfg.GC.Timeout),
			gc.WithLogger(log.Named("gc")),
		}
		if publisher != nil {
			gcOpts = append(gcOpts, gc.WithPublisher(publisher))
		}
		locker := lock.NewRedisLocker(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL, log.Named("lock"))
		collector = gc.NewCollector(store, locker, gcOpts...)
		gcRunner = collector
		opts = append(opts, syncer.WithCollector(collector))
	}

	var health handler.HealthChecker
	if publisher != nil {
		opts = append(opts, syncer.WithThumbnailPublisher(publisher))
		health = publisher
	}

	accounts, err := cfg.Sync.ParseAccounts()
	if err != nil {
		return err
	}
	syncAccounts := make([]syncer.Account, 0, len(accounts))
	for _, acc := range accounts {
		syncAccounts = append(syncAccounts, syncer.Account{Platform: model.Platform(acc.Platform), ID: acc.ID})
	}

	s, err := syncer.New(store, engine, syncer.Config{
		Accounts:          syncAccounts,
		AccountTimeout:    cfg.Sync.AccountTimeout,
		Concurrency:       cfg.Sync.Concurrency,
		ChannelMaxAge:     cfg.Sync.ChannelMaxAge,
		ExpiredVideoLimit: cfg.Sync.ExpiredVideoLimit,
	}, opts...)
	if err != nil {
		return err
	}

	if cfg.Server.AdminAPIKey == "" {
		log.Warn("no admin API key configured - admin endpoints will reject all requests",
			zap.String("env_var", "APP_SERVER_ADMINAPIKEY"),
		)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Health: handler.NewHealthHandler(store, pingRedis(rdb), health),
		Admin:  handler.NewAdminHandler(s, gcRunner, tt, quotaManager, store.Quota(), log.Named("admin")),
		Auth:   middleware.NewAPIKeyAuth(strings.Split(cfg.Server.AdminAPIKey, ","), log.Named("auth")),
		Logger: log.Named("http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("sync service starting",
		zap.Int("port", cfg.Server.Port),
		zap.Duration("interval", cfg.Sync.Interval),
		zap.Int("accounts", len(syncAccounts)),
		zap.Bool("gc_enabled", collector != nil),
		zap.Bool("events_enabled", publisher != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runLoop(gctx, s, cfg.Sync.Interval, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newEngine(cfg *config.Config) (syncer.Engine, error) {
	keywords := cfg.Heuristic.Keywords
	if len(keywords) == 0 {
		keywords = freshness.DefaultFreeChatKeywords
	}
	heuristic, err := freshness.NewKeywordHeuristic(keywords)
	if err != nil {
		return syncer.Engine{}, err
	}

	f := cfg.Freshness
	return syncer.NewEngine(
		freshness.VideoPolicy{
			FreeChatDuration: f.FreeChatDuration,
			LiveDuration:     f.LiveDuration,
			DefaultDuration:  f.DefaultDuration,
			SoonLimit:        f.SoonLimit,
		},
		freshness.PlaylistPolicy{
			MaxAgeDefault:      f.MaxAgeDefault,
			MaxAgeMax:          f.MaxAgeMax,
			RecentlyBorder:     f.RecentlyBorder,
			UpperLimitActive:   f.UpperLimitActive,
			UpperLimitInactive: f.UpperLimitInactive,
		},
		freshness.FollowingPolicy{MaxAgeBroadcaster: f.MaxAgeBroadcaster},
		heuristic,
	)
}

func pingRedis(rdb *redis.Client) handler.PingFunc {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
