package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/memo-api/internal/common"
	"github.com/noah-isme/memo-api/internal/config"
	"github.com/noah-isme/memo-api/internal/delivery"
	"github.com/noah-isme/memo-api/internal/health"
	"github.com/noah-isme/memo-api/internal/lock"
	"github.com/noah-isme/memo-api/internal/memo"
	"github.com/noah-isme/memo-api/internal/obs"
	"github.com/noah-isme/memo-api/internal/ratelimit"
	"github.com/noah-isme/memo-api/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "memo")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "memo-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
			Insecure:      envBool("OBS_OTLP_INSECURE", false),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(cfg, logger, metricsEnabled)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	sink, err := delivery.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise delivery sink")
	}
	var names memo.NameClaimer
	if redisClient != nil {
		names = lock.Locker{R: redisClient, Prefix: "memo:file:"}
	}
	memoService, err := memo.NewService(memo.ServiceConfig{
		Renderer: memo.Renderer{
			Title:    cfg.MemoTitle,
			Footer:   cfg.MemoFooter,
			Location: cfg.Location(),
			Author:   envOrDefault("MEMO_AUTHOR", ""),
		},
		Sink:     sink,
		MaxItems: cfg.MemoMaxItems,
		Names:    names,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise memo service")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	trustedProxies, err := common.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse trusted proxies")
	}

	r := newRouter(routerDeps{
		cfg:            cfg,
		trustedProxies: trustedProxies,
		logger:         logger,
		memo:           memo.NewHandler(memo.HandlerConfig{Service: memoService}),
		health:         health.Handler{Checker: readinessDeps(redisClient, sink), RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300), SinkTimeout: envDurationMillis("HEALTH_READY_SINK_TIMEOUT_MS", 500)},
		redis:          redisClient,
		httpMetrics:    httpMetrics,
		metricsEnabled: metricsEnabled,
		tracingEnabled: tracingEnabled,
	})
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("sink", sink.Name()).Msg("server starting")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

type routerDeps struct {
	cfg            *config.Config
	trustedProxies []netip.Prefix
	logger         zerolog.Logger
	memo           *memo.Handler
	health         health.Handler
	redis          *redis.Client
	httpMetrics    *obs.HTTPMetrics
	metricsEnabled bool
	tracingEnabled bool
}

func newRouter(deps routerDeps) chi.Router {
	cfg := deps.cfg
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(common.TrustProxies(deps.trustedProxies))
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if deps.tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if deps.metricsEnabled && deps.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: deps.httpMetrics, SkipPaths: []string{"/metrics", "/health/live", "/health/ready"}}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: deps.logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{
		Enable:          cfg.SecurityHeadersEnabled,
		EnableHSTS:      cfg.AppEnv == "production",
		NoStorePrefixes: []string{"/api/"},
	}.Middleware)

	if deps.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", deps.health.Live)
	r.Get("/health/ready", deps.health.Ready)

	if cfg.DeliverySink == config.SinkLocal {
		r.Handle(delivery.MountPath+"*", delivery.FileServer(cfg.MemoDir))
	}

	limiter := rateLimiter(cfg, deps.redis, deps.logger)
	memoRoutes := func(api chi.Router) {
		api.With(limiter).Get("/memo", deps.memo.Generate)
	}
	r.Route("/api", func(api chi.Router) {
		memoRoutes(api)
		api.Route("/v1", memoRoutes)
	})
	return r
}

func rateLimiter(cfg *config.Config, client *redis.Client, logger zerolog.Logger) func(http.Handler) http.Handler {
	if client == nil || cfg.RateLimitMax <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: client, Prefix: "memo:ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.KeyByClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter degraded")
		},
	}.Middleware
}

// connectRedis returns nil when REDIS_URL is unset; rate limiting and
// cross-instance filename claims are then disabled.
func connectRedis(cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info().Msg("redis not configured, rate limiting and name claims disabled")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("ping redis")
	}
	return client
}

func readinessDeps(client *redis.Client, sink delivery.Sink) health.Dependencies {
	p := health.Dependencies{Sink: sink}
	if client != nil {
		p.Redis = client
	}
	return p
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
