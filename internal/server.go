package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/exercisetracker/internal/config"
	"github.com/2beens/exercisetracker/internal/db"
	"github.com/2beens/exercisetracker/internal/events"
	"github.com/2beens/exercisetracker/internal/middleware"
	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/internal/tracker"
	"github.com/2beens/exercisetracker/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName = "exercise-tracker"

	StorageModePostgres = "postgres"
	StorageModeMemory   = "memory"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config      *config.Config
	dbPool      *pgxpool.Pool // nil in memory mode
	store       tracker.Store
	storageMode string

	redisClient *redis.Client
	rateLimiter middleware.RequestRateLimiter // nil when rate limiting is off
	publisher   events.Publisher

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	DBPassword              string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("tracker", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	s := &Server{
		config:         cfg,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		publisher:      events.NoopPublisher{},
		otelShutdown:   func() {},
	}

	if err := s.storageSetup(ctx, params); err != nil {
		return nil, err
	}

	if cfg.RedisEnabled {
		s.redisSetup(ctx, params.RedisPassword)
	} else {
		log.Debugln("redis disabled, write endpoints are not rate limited")
	}

	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, serviceName, s.redisClient)
	if err != nil {
		return nil, err
	}
	s.otelShutdown = otelShutdown

	if len(cfg.KafkaBrokers) > 0 {
		log.Infof("publishing exercise events to kafka %v, topic [%s]", cfg.KafkaBrokers, cfg.KafkaTopic)
		s.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metricsManager)
	} else {
		log.Debugln("no kafka brokers configured, exercise events are not published")
	}

	return s, nil
}

// storageSetup picks the store once for the process lifetime: postgres when it
// answers a ping within the connect timeout, the in-memory store otherwise.
func (s *Server) storageSetup(ctx context.Context, params NewServerParams) error {
	cfg := s.config

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBUser:         cfg.PostgresUser,
		DBPassword:     params.DBPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeoutDuration())
		err = dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			dbPool.Close()
		}
	}

	if err != nil {
		log.Warnf("postgres unavailable, falling back to in-memory storage (data is lost on restart): %s", err)
		s.store = tracker.NewMemoryStore(fallbackIDGenerator(cfg.FallbackIDFormat))
		s.storageMode = StorageModeMemory
		s.metricsManager.GaugeStorageMode.Set(metrics.StorageModeMemory)
		return nil
	}

	if err := db.Migrate(ctx, dbPool); err != nil {
		dbPool.Close()
		return fmt.Errorf("migrate db: %w", err)
	}

	s.promRegistry.MustRegister(pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.PostgresDBName},
	))

	s.dbPool = dbPool
	s.store = tracker.NewCachedStore(
		tracker.NewPsqlStore(dbPool),
		cfg.UserCacheSizeMB,
		cfg.UserCacheTTL(),
	)
	s.storageMode = StorageModePostgres
	s.metricsManager.GaugeStorageMode.Set(metrics.StorageModePostgres)
	log.Infof("using postgres storage at [%s:%s/%s]", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	return nil
}

func (s *Server) redisSetup(ctx context.Context, redisPassword string) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(s.config.RedisHost, s.config.RedisPort),
		Password: redisPassword,
		DB:       0,
	})

	limiter, err := newRateLimiter(ctx, rdb)
	if err != nil {
		log.Warnf("redis unavailable, write endpoints are not rate limited: %s", err)
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
		return
	}

	s.redisClient = rdb
	s.rateLimiter = limiter
}

func newRateLimiter(ctx context.Context, rdb *redis.Client) (*redis_rate.Limiter, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pong, err := rdb.Ping(pingCtx).Result()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Debugf("redis ping: %s", pong)

	return redis_rate.NewLimiter(rdb), nil
}

func fallbackIDGenerator(format string) tracker.IDGenerator {
	if format == config.IDFormatUUID {
		return tracker.UUIDGenerator{}
	}
	return tracker.ShortIDGenerator{}
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))

	r.HandleFunc("/", s.handleRoot).Methods("GET").Name("root")
	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")

	trackerHandler := tracker.NewHandler(s.store, s.publisher, s.metricsManager)
	trackerHandler.SetupRoutes(r, s.rateLimiter, s.config.RateLimitPerMin)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteJSONError(w, "Not found", http.StatusNotFound)
	})

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.CorsAllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "exercise tracker is up")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSON(w, HealthResponse{
		Status:  "ok",
		Storage: s.storageMode,
	}, http.StatusOK)
}

func (s *Server) StorageMode() string {
	return s.storageMode
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      otelhttp.NewHandler(router, serviceName),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.MetricsHost, s.config.MetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s], storage: [%s]", ipAndPort, s.storageMode)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, so nothing writes to the closed store/publisher
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown http server: %s", err)
		}
		log.Warnln("server shut down")
	}

	if err := s.publisher.Close(); err != nil {
		log.Errorf("failed to close events publisher: %s", err)
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
