package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/traffic-advisor/internal/traffic"
	"github.com/richxcame/traffic-advisor/pkg/cache"
	"github.com/richxcame/traffic-advisor/pkg/common"
	"github.com/richxcame/traffic-advisor/pkg/config"
	"github.com/richxcame/traffic-advisor/pkg/database"
	sentryerrors "github.com/richxcame/traffic-advisor/pkg/errors"
	"github.com/richxcame/traffic-advisor/pkg/eventbus"
	"github.com/richxcame/traffic-advisor/pkg/logger"
	"github.com/richxcame/traffic-advisor/pkg/middleware"
	"github.com/richxcame/traffic-advisor/pkg/ratelimit"
	redisClient "github.com/richxcame/traffic-advisor/pkg/redis"
	"github.com/richxcame/traffic-advisor/pkg/resilience"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName    = "traffic"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Sentry for error tracking
	sentryConfig := sentryerrors.DefaultSentryConfig(serviceName)
	if sentryConfig.Release == "" {
		sentryConfig.Release = serviceVersion
	}
	if err := sentryerrors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Sentry disabled, continuing without error tracking", zap.Error(err))
	} else {
		defer sentryerrors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized")
	}

	tp, err := tracing.InitTracer(rootCtx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}, logger.Get())
	if err != nil {
		logger.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	} else if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx); err != nil {
				logger.Warn("Failed to shut down tracer", zap.Error(err))
			}
		}()
	}

	// Storage and cache are optional: predictions are still served without them.
	dbPool := connectDatabase(rootCtx, cfg)
	if dbPool != nil {
		defer database.Close(dbPool)
	}

	var redis *redisClient.Client
	if client, err := redisClient.NewRedisClient(&cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, geocode and weather caching disabled", zap.Error(err))
	} else {
		redis = client
		defer redis.Close()
	}
	var cacheManager *cache.Manager
	if redis != nil {
		cacheManager = cache.NewManager(redis)
	}

	engine, err := buildEngine(cfg, cacheManager)
	if err != nil {
		logger.Fatal("Failed to build prediction engine", zap.Error(err))
	}

	var (
		publisher eventbus.Publisher
		eventBus  *eventbus.Bus
	)
	if cfg.Events.Enabled {
		bus, err := eventbus.New(rootCtx, eventbus.Config{
			URL:        cfg.Events.URL,
			Name:       serviceName,
			StreamName: cfg.Events.StreamName,
		})
		if err != nil {
			logger.Warn("Event bus unavailable, prediction events disabled", zap.Error(err))
		} else {
			publisher = bus
			eventBus = bus
			defer bus.Close()
		}
	}

	var store traffic.PredictionStore
	if dbPool != nil {
		store = traffic.NewRepository(dbPool)
	}
	handler := traffic.NewHandler(engine, store, publisher)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", common.LivenessProbe(serviceName, serviceVersion))
	router.GET("/health/live", common.LivenessProbe(serviceName, serviceVersion))

	checks := make(map[string]common.HealthCheckFunc)
	if dbPool != nil {
		checks["database"] = dbPool.Ping
	}
	if redis != nil {
		checks["redis"] = redis.Ping
	}
	if eventBus != nil {
		checks["events"] = func(context.Context) error {
			if !eventBus.Connected() {
				return errors.New("nats connection lost")
			}
			return nil
		}
	}
	router.GET("/health/ready", common.ReadinessProbe(serviceName, serviceVersion, checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var predictMiddleware []gin.HandlerFunc
	if redis != nil && cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(redis.Client, cfg.RateLimit)
		predictMiddleware = append(predictMiddleware, middleware.RateLimit(limiter))
	}
	handler.RegisterRoutes(router, predictMiddleware...)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Traffic service starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down traffic service...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Traffic service stopped")
}

func connectDatabase(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		logger.Warn("Database unavailable, prediction history disabled", zap.Error(err))
		return nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(&cfg.Database); err != nil {
			logger.Error("Failed to run migrations, prediction history disabled", zap.Error(err))
			database.Close(pool)
			return nil
		}
	}
	return pool
}

// buildEngine wires the prediction pipeline from configuration. Each upstream
// gets its own circuit breaker.
func buildEngine(cfg *config.Config, cacheManager *cache.Manager) (*traffic.Engine, error) {
	location, err := time.LoadLocation(cfg.Holidays.Timezone)
	if err != nil {
		return nil, err
	}

	breakerFor := func(name string) *resilience.CircuitBreaker {
		if !cfg.Resilience.CircuitBreaker.Enabled {
			return nil
		}
		settings := cfg.Resilience.CircuitBreaker.SettingsFor(name)
		return resilience.NewCircuitBreaker(resilience.SettingsFromConfig(name, settings), nil)
	}

	rng := traffic.NewRandom(cfg.Random.Seed)

	var geocoder traffic.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = traffic.NewNominatimClient(cfg.Geocoder, breakerFor("nominatim"))
	}
	resolver := traffic.NewResolver(geocoder, rng,
		traffic.WithGeocodeCache(cacheManager, cfg.Geocoder.CacheTTL),
	)

	calendar, err := traffic.NewHolidayCalendar(cfg.Holidays)
	if err != nil {
		return nil, err
	}
	logger.Info("Holiday calendar loaded",
		zap.Int("first_year", cfg.Holidays.FirstYear),
		zap.Int("last_year", cfg.Holidays.LastYear),
		zap.Int("holidays", len(calendar.Dates())),
	)

	deriverOpts := []traffic.DeriverOption{
		traffic.WithWeatherCache(cacheManager, cfg.Weather.CacheTTL),
	}
	if cfg.Weather.Enabled {
		deriverOpts = append(deriverOpts,
			traffic.WithWeatherProvider(traffic.NewOpenWeatherClient(cfg.Weather, breakerFor("openweathermap"))),
		)
	} else {
		logger.Info("Weather lookup disabled, using the fallback distribution")
	}
	deriver := traffic.NewContextDeriver(calendar, rng, deriverOpts...)

	model, err := traffic.LoadModel(cfg.Model, breakerFor("model-server"))
	if err != nil {
		logger.Warn("Congestion model not loaded, using heuristic classifier", zap.Error(err))
	} else {
		logger.Info("Congestion model loaded",
			zap.String("artifact", cfg.Model.ArtifactPath),
			zap.String("server", cfg.Model.ServerURL),
		)
	}

	return traffic.NewEngine(resolver, deriver, traffic.NewClassifier(model),
		traffic.WithLocation(location),
	), nil
}
