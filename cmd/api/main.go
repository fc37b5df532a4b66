package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/kiranahub/backend-pos/internal/analytics"
	"github.com/kiranahub/backend-pos/internal/auth"
	"github.com/kiranahub/backend-pos/internal/billing"
	"github.com/kiranahub/backend-pos/internal/catalog"
	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/config"
	"github.com/kiranahub/backend-pos/internal/db"
	"github.com/kiranahub/backend-pos/internal/delivery"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/health"
	"github.com/kiranahub/backend-pos/internal/jobs"
	"github.com/kiranahub/backend-pos/internal/obs"
	"github.com/kiranahub/backend-pos/internal/order"
	"github.com/kiranahub/backend-pos/internal/ratelimit"
	"github.com/kiranahub/backend-pos/internal/receipt"
	"github.com/kiranahub/backend-pos/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kirana")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "pos-api", obs.PGXTracer{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()

	bus := &events.Bus{
		Store: &events.PGStore{Conn: pool},
		Notifiers: []events.Notifier{
			jobs.EventNotifier{Client: asynqClient, Queue: cfg.NotifyQueueName},
		},
	}

	catalogRepo := &catalog.Repo{Conn: pool}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      catalogRepo,
		Cache:        catalog.NewCache(redisClient, cfg.SuggestCacheTTL),
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	userRepo := &auth.Repo{Conn: pool}
	authService, err := auth.NewService(auth.Config{
		Users: userRepo,
		OTPs: &auth.OTPStore{
			R:           redisClient,
			TTL:         cfg.OTPTTL,
			ResendAfter: cfg.OTPResendAfter,
			MaxAttempts: cfg.OTPMaxAttempts,
			RatePerHour: cfg.OTPRatePerHour,
		},
		SMS:            auth.LogSender{Log: func(phone, message string) { logger.Info().Str("phone", phone).Msg("sms out") }},
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	printer, err := receipt.NewPrinterFromConfig(cfg.PrinterType, cfg.PrinterPath, cfg.PrinterAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure printer")
	}

	billingService := &billing.Service{
		Store:      &billing.Repo{Conn: pool, Pool: pool},
		Prices:     catalogRepo,
		Accounts:   userRepo,
		Invoices:   &billing.InvoiceSequencer{R: redisClient},
		Bus:        bus,
		Tasks:      asynqClient,
		Printer:    printer,
		PrintQueue: cfg.PrintQueueName,
		Shop: receipt.Header{
			ShopName: cfg.ShopName,
			Address:  cfg.ShopAddress,
			Phone:    cfg.ShopPhone,
			GSTIN:    cfg.ShopGSTIN,
		},
		UPIVPA: cfg.UPIPayeeVPA,
		Width:  cfg.PrinterWidth,
		Logger: logger,
	}
	billingHandler := &billing.Handler{Service: billingService}

	orderRepo := &order.Repo{Conn: pool}
	orderHandler := &order.Handler{Orders: orderRepo, Views: billingService, Phones: userRepo}
	orderAdmin := &order.AdminHandler{Orders: orderRepo}

	deliveryService := &delivery.Service{
		Agents: &delivery.Repo{Conn: pool},
		Orders: orderRepo,
		Phones: userRepo,
		Bus:    bus,
		Logger: logger,
	}
	deliveryHandler := &delivery.Handler{Service: deliveryService}

	analyticsSvc := &analytics.Service{
		Q:            &analytics.Repo{Conn: pool},
		R:            redisClient,
		TTL:          cfg.AnalyticsCacheTTL,
		DefaultRange: cfg.AnalyticsRange,
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := ratelimit.NewRedisStore(redisClient, "ratelimit:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rl := ratelimit.Limiter{Store: limiterStore}
	suggestRate, err := ratelimit.ParseRate(cfg.SuggestRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.SuggestRateLimit).Msg("parse suggest rate limit")
	}
	suggestLimit := ratelimit.Handler{
		Limiter: rl,
		Config:  ratelimit.Config{Key: keyByIP("suggest"), Window: suggestRate.Period, Max: int(suggestRate.Limit)},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit check") },
	}
	otpLimit := ratelimit.Handler{
		Limiter: rl,
		Config:  ratelimit.Config{Key: keyByIP("otp"), Window: time.Minute, Max: 10},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit check") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	staffOnly := []string{auth.RoleCashier, auth.RoleAdmin}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{slug}", catalogHandler.ProductDetail)

		v.Route("/auth", func(a chi.Router) {
			a.With(otpLimit.Middleware).Post("/otp/request", authHandler.RequestOTP)
			a.Post("/otp/verify", authHandler.VerifyOTP)
			a.Post("/admin/login", authHandler.AdminLogin)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(customer chi.Router) {
			customer.Use(authMiddleware.RequireAuth)
			customer.Get("/orders", orderHandler.List)
			customer.Get("/orders/{id}", orderHandler.Get)
		})

		v.Route("/pos", func(pos chi.Router) {
			pos.Use(authMiddleware.RequireAuth)
			pos.Use(authMiddleware.RequireRole(staffOnly...))
			pos.With(suggestLimit.Middleware).Get("/products/suggest", catalogHandler.Suggest)
			pos.With(idem.Middleware).Post("/orders", billingHandler.CreateOrder)
			pos.Get("/orders/{id}", billingHandler.GetOrder)
			pos.Get("/orders/{id}/receipt", billingHandler.ReceiptPreview)
			pos.Post("/orders/{id}/mark-paid", billingHandler.MarkPaid)
			pos.Post("/orders/{id}/print", billingHandler.Reprint)
		})

		v.Route("/delivery", func(d chi.Router) {
			d.Use(authMiddleware.RequireAuth)
			d.Use(authMiddleware.RequireRole(auth.RoleDelivery))
			d.Get("/orders", deliveryHandler.Assigned)
			d.Post("/orders/{id}/complete", deliveryHandler.Complete)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin))
			admin.Post("/products", catalogHandler.Create)
			admin.Put("/products/{id}", catalogHandler.Update)
			admin.Delete("/products/{id}", catalogHandler.Delete)
			admin.Post("/products/{id}/variants", catalogHandler.SaveVariant)
			admin.Get("/orders", orderAdmin.List)
			admin.Post("/orders/{id}/cancel", orderAdmin.Cancel)
			admin.Post("/orders/{id}/assign", orderAdmin.Assign)
			admin.Post("/agents", deliveryHandler.Register)
			admin.Get("/agents", deliveryHandler.List)
			admin.Post("/agents/{id}/verify", deliveryHandler.Verify)
			admin.Get("/analytics/sales", analyticsHandler.Sales)
			admin.Get("/analytics/top-products", analyticsHandler.TopProducts)
			admin.Get("/analytics/overview", analyticsHandler.Overview)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()
	health.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		health.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func keyByIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

type readinessChecker struct {
	db interface {
		Ping(ctx context.Context) error
	}
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
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
