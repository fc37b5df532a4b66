package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kiranahub/backend-pos/internal/auth"
	"github.com/kiranahub/backend-pos/internal/billing"
	"github.com/kiranahub/backend-pos/internal/catalog"
	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/config"
	"github.com/kiranahub/backend-pos/internal/db"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/jobs"
	"github.com/kiranahub/backend-pos/internal/lock"
	"github.com/kiranahub/backend-pos/internal/obs"
	"github.com/kiranahub/backend-pos/internal/receipt"
	"github.com/kiranahub/backend-pos/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "kirana"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "pos-worker", obs.PGXTracer{})
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
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	printer, err := receipt.NewPrinterFromConfig(cfg.PrinterType, cfg.PrinterPath, cfg.PrinterAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure printer")
	}
	breaker := resilience.NewBreaker(3, 0.5, 30*time.Second).
		WithTarget("print-bridge").
		WithLogger(logger)
	printer = receipt.WithBreaker(printer, breaker)

	bus := &events.Bus{Store: &events.PGStore{Conn: pool}}

	billingService := &billing.Service{
		Store:    &billing.Repo{Conn: pool, Pool: pool},
		Prices:   &catalog.Repo{Conn: pool},
		Accounts: &auth.Repo{Conn: pool},
		Shop: receipt.Header{
			ShopName: cfg.ShopName,
			Address:  cfg.ShopAddress,
			Phone:    cfg.ShopPhone,
			GSTIN:    cfg.ShopGSTIN,
		},
		Width:  cfg.PrinterWidth,
		Logger: logger,
	}

	printWorker := &jobs.PrintWorker{
		Source:  billingService,
		Printer: printer,
		Locker:  lock.Locker{R: redisClient, RetryBackoff: 100 * time.Millisecond},
		Bus:     bus,
		Width:   cfg.PrinterWidth,
		Logger:  logger,
	}
	notifyWorker := &jobs.NotifyWorker{
		Contacts: billingService,
		Email:    common.NopEmailSender{},
		Logger:   logger,
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB},
		asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 4),
			Queues: map[string]int{
				cfg.PrintQueueName:  6,
				cfg.NotifyQueueName: 3,
			},
			Logger: asynqLogger{logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeReceiptPrint, printWorker.HandleReceiptPrint)
	mux.HandleFunc(jobs.TypeOrderNotify, notifyWorker.HandleOrderNotify)

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
