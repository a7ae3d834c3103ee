package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"buildwatch/internal/analytics"
	"buildwatch/internal/api"
	"buildwatch/internal/circuitbreaker"
	"buildwatch/internal/config"
	"buildwatch/internal/cron"
	"buildwatch/internal/fanout"
	"buildwatch/internal/leaderelection"
	"buildwatch/internal/metrics"
	"buildwatch/internal/oracle"
	"buildwatch/internal/store/postgres"
	"buildwatch/internal/tracker"
	"buildwatch/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`buildwatch - CI build tracking and notification service

Usage:
  buildwatch <command>

Commands:
  serve      Start the API server and reconciliation loop
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  CI_BASE_URL                CI server base URL (required)
  CI_TOKEN                   CI API bearer token (optional)
  CI_INSECURE_SKIP_VERIFY    Skip CI TLS verification (default: "false")
  CHECK_TIMEOUT              Per-check CI request timeout (default: "10s")

  REDIS_ADDR                 Redis address for status caching (optional)
  STATUS_CACHE_TTL           Cache TTL for running statuses (default: "30s")

  HTTP_ADDR                  HTTP server address (default: ":8080")
  POLL_INTERVAL              Reconciliation poll interval (default: "60s")
  POLL_SCHEDULE              Cron expression replacing POLL_INTERVAL (optional)
  EVENTBUS_BUFFER_SIZE       Build event buffer size (default: "100")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME      Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_ADDR               Metrics server address (default: ":9090")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  CIRCUIT_BREAKER_THRESHOLD  Failures before a job's circuit opens, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   How long an open circuit stays open (default: "2m")

  LEADER_ELECTION_ENABLED    Only the lock holder polls CI (default: "false")
  LEADER_LOCK_KEY            Postgres advisory lock key (default: "911217")
  LEADER_RETRY_INTERVAL      Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Leader connection ping interval (default: "2s")

  CONFIG_FILE                Optional YAML file filling in unset variables`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("buildwatch: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	if err := store.EnsureSchema(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
		return exitRuntimeError
	}

	if err := probeNotificationsIndex(db); err != nil {
		log.Printf("buildwatch: WARNING - notifications unique index probe failed: %v", err)
		log.Println("buildwatch: WARNING - without the unique index, replayed build events produce duplicate notifications")
	}

	logConfigWarnings(&cfg)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("buildwatch: metrics enabled (addr=%s, path=%s)", cfg.MetricsAddr, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("buildwatch: metrics server listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("buildwatch: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("buildwatch: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	// The oracle is the only component that talks to the CI server.
	orc := oracle.New(oracle.Config{
		BaseURL:            cfg.CIBaseURL,
		Token:              cfg.CIToken,
		Timeout:            cfg.CheckTimeout,
		InsecureSkipVerify: cfg.CIInsecureSkipVerify,
	})
	if cfg.CircuitBreakerThreshold > 0 {
		breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		orc = orc.WithBreaker(breaker)
		log.Printf("buildwatch: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	if metricsSink != nil {
		orc = orc.WithMetrics(metricsSink)
	}

	// Background checks go through the Redis cache when configured; the
	// foreground /track and /status paths always ask CI directly.
	var checker tracker.StatusChecker = orc
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		checker = oracle.NewCachedChecker(orc, redisClient, cfg.StatusCacheTTL)
		log.Printf("buildwatch: status cache enabled (redis=%s, running_ttl=%s)", cfg.RedisAddr, cfg.StatusCacheTTL)
	}

	fan := fanout.New(store)
	if metricsSink != nil {
		fan = fan.WithMetrics(metricsSink)
	}
	if redisClient != nil {
		fan = fan.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("buildwatch: completion analytics enabled (redis=%s)", cfg.RedisAddr)
	}

	loop := tracker.NewLoop(tracker.Config{PollInterval: cfg.PollInterval}, store, checker, bus)
	if metricsSink != nil {
		loop = loop.WithMetrics(metricsSink)
	}
	if cfg.PollSchedule != "" {
		sched, err := cron.ParseSchedule(cfg.PollSchedule)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid POLL_SCHEDULE: %v\n", err)
			return exitInvalidConfig
		}
		loop = loop.WithSchedule(sched)
		log.Printf("buildwatch: polling on schedule %q", cfg.PollSchedule)
	}

	userTracker := tracker.NewUserTracker(store, checker, fan)

	apiHandler := api.NewHandler(store, orc, userTracker).WithHealthChecker(db)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("buildwatch: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("buildwatch: http server error: %v", err)
		}
	}()

	// Separate contexts for the loop and the fanout worker enable ordered
	// shutdown: the loop stops emitting first, then the fanout drains.
	fanoutCtx, cancelFanout := context.WithCancel(context.Background())

	var loopWg sync.WaitGroup
	var fanoutWg sync.WaitGroup

	fanoutWg.Add(1)
	go func() {
		defer fanoutWg.Done()
		fan.Run(fanoutCtx, bus.Channel())
	}()

	startLoop := func(ctx context.Context) {
		loopWg.Add(1)
		go func() {
			defer loopWg.Done()
			if err := loop.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("buildwatch: reconciliation loop error: %v", err)
			}
		}()
	}

	var stopLoop func()
	var electorWg sync.WaitGroup

	if cfg.LeaderElectionEnabled {
		electorCtx, cancelElector := context.WithCancel(context.Background())
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			startLoop,
			loopWg.Wait,
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		stopLoop = func() {
			cancelElector()
			electorWg.Wait()
			loopWg.Wait()
		}
		log.Printf("buildwatch: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		loopCtx, cancelLoop := context.WithCancel(context.Background())
		startLoop(loopCtx)
		stopLoop = func() {
			cancelLoop()
			loopWg.Wait()
		}
	}

	log.Printf("buildwatch: started (poll=%s, http=%s)", cfg.PollInterval, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("buildwatch: received signal %v, shutting down", received)

	// Phase 1: Stop the reconciliation loop (no new events emitted)
	log.Println("buildwatch: stopping reconciliation loop...")
	stopLoop()
	log.Println("buildwatch: reconciliation loop stopped")

	// Phase 2: Stop the fanout worker (drains buffered events before returning)
	log.Println("buildwatch: stopping fanout (draining events)...")
	cancelFanout()
	fanoutWg.Wait()
	log.Println("buildwatch: fanout stopped")

	// Phase 3: Stop HTTP server with graceful shutdown
	log.Println("buildwatch: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("buildwatch: http server shutdown error: %v", err)
	}
	log.Println("buildwatch: http server stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("buildwatch: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("buildwatch: metrics server shutdown error: %v", err)
		}
		log.Println("buildwatch: metrics server stopped")
	}

	log.Println("buildwatch: stopped")
	return exitSuccess
}

// probeNotificationsIndex verifies the unique index backing exactly-once
// notification delivery exists. EnsureSchema creates it, but a table that
// predates the index would silently allow duplicates.
func probeNotificationsIndex(db *sql.DB) error {
	var name string
	err := db.QueryRow(
		`SELECT indexname FROM pg_indexes
		 WHERE tablename = 'notifications' AND indexname = 'notifications_delivery_key'`,
	).Scan(&name)
	return err
}

// logConfigWarnings logs startup warnings for configurations that weaken
// correctness or visibility. P0 warnings mean user-visible misbehavior is
// possible; P1 warnings mean degraded resilience or observability.
func logConfigWarnings(cfg *config.Config) {
	if !cfg.LeaderElectionEnabled {
		log.Println("buildwatch: WARNING [P0]: LEADER_ELECTION_ENABLED=false - running more than one instance will double-poll the CI server and race on transitions")
	}

	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("buildwatch: WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0 - an unhealthy CI server will be retried every cycle with no backoff")
	}

	if !cfg.MetricsEnabled {
		log.Println("buildwatch: WARNING [P1]: METRICS_ENABLED=false - no visibility into cycle health, check latency, or fanout errors")
	}

	if cfg.CIInsecureSkipVerify {
		log.Println("buildwatch: WARNING [P1]: CI_INSECURE_SKIP_VERIFY=true - CI server TLS certificates are not verified")
	}

	if cfg.RedisAddr == "" {
		log.Println("buildwatch: INFO: REDIS_ADDR not set; status cache disabled, every check hits the CI server")
	}

	if cfg.CIToken == "" {
		log.Println("buildwatch: INFO: CI_TOKEN not set; CI requests are unauthenticated")
	}

	if cfg.PollSchedule != "" {
		log.Printf("buildwatch: INFO: POLL_SCHEDULE=%q set; POLL_INTERVAL is ignored", cfg.PollSchedule)
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("buildwatch version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
