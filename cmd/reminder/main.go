package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/api"
	"github.com/lalithlochan/shelflife/internal/circuitbreaker"
	"github.com/lalithlochan/shelflife/internal/config"
	"github.com/lalithlochan/shelflife/internal/db"
	"github.com/lalithlochan/shelflife/internal/expiry"
	"github.com/lalithlochan/shelflife/internal/mailer"
	"github.com/lalithlochan/shelflife/internal/metrics"
	"github.com/lalithlochan/shelflife/internal/observ"
	"github.com/lalithlochan/shelflife/internal/redis"
	"github.com/lalithlochan/shelflife/internal/reminder"
	"github.com/lalithlochan/shelflife/internal/scheduler"
	"github.com/lalithlochan/shelflife/internal/sns"
	"github.com/lalithlochan/shelflife/internal/sqs"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit instead of serving HTTP")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting expiry reminder",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("policy", cfg.ReminderPolicy),
		zap.String("notify_mode", cfg.NotifyMode),
		zap.String("run_guard", cfg.RunGuard),
		zap.String("mail_provider", cfg.MailProvider),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis is required for the redis run guard and optional otherwise,
	// where it only backs the /run-job rate limiter.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		if cfg.RunGuard == config.GuardRedis {
			return fmt.Errorf("redis run guard unavailable: %w", err)
		}
		logger.Warn("redis unavailable, rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:            cfg.MailProvider,
		MaxFailures:     cfg.BreakerMaxFailures,
		RecoveryTimeout: cfg.BreakerRecoveryTimeout,
		OnStateChange: func(name string, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
		},
	}, logger)
	protected := circuitbreaker.NewProtectedMailer(m, breaker, logger)

	var opts []reminder.Option
	switch cfg.RunGuard {
	case config.GuardRedis:
		opts = append(opts, reminder.WithGuard(newGuard(cfg, redis.NewRunStateStore(redisClient, logger), logger)))
	case config.GuardPostgres:
		opts = append(opts, reminder.WithGuard(newGuard(cfg, repo, logger)))
	case config.GuardNone:
		logger.Warn("run guard disabled, every trigger sends reminders")
	}

	if cfg.SNSTopicARN != "" {
		publisher, err := newSNSPublisher(ctx, cfg, logger)
		if err != nil {
			logger.Warn("sns publisher unavailable, sweep summaries will not be published", zap.Error(err))
		} else {
			opts = append(opts, reminder.WithPublisher(publisher))
		}
	}

	if cfg.SQSQueueURL != "" {
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSQueueURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, sweep summaries will not be queued", zap.Error(err))
		} else {
			opts = append(opts, reminder.WithPublisher(producer))
		}
	}

	var policy expiry.Policy = expiry.NewFixedSet(cfg.ReminderMilestones)
	if cfg.ReminderPolicy == config.PolicyPerRecord {
		policy = expiry.PerRecord{}
	}

	svc := reminder.NewService(repo, protected, mailer.NewRenderer(), reminder.Config{
		Policy:      policy,
		NotifyMode:  reminder.NotifyMode(cfg.NotifyMode),
		Concurrency: cfg.MailConcurrency,
		SendTimeout: cfg.MailSendTimeout,
		Location:    cfg.Location(),
	}, logger, opts...)

	if once {
		return runOnce(ctx, svc, cfg.SweepTimeout, logger)
	}

	var sched *scheduler.Scheduler
	if cfg.CronSpec != "" {
		sched, err = scheduler.New(scheduler.Config{
			Spec:     cfg.CronSpec,
			Location: cfg.Location(),
			Timeout:  cfg.SweepTimeout,
		}, svc, logger)
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		logger.Info("CRON_SPEC empty, sweeps run only via /run-job")
	}

	var rateLimiter *redis.RateLimiter
	if redisClient != nil && cfg.RateLimitPerMinute > 0 {
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
	}

	handler := api.NewHandler(logger, svc, repo, cfg.SweepTimeout)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, rateLimiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SweepTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if sched != nil {
			if err := sched.Stop(ctx); err != nil {
				logger.Warn("scheduler did not stop cleanly", zap.Error(err))
			}
		}

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

func newGuard(cfg *config.Config, store reminder.RunStateStore, logger *zap.Logger) *reminder.Guard {
	return reminder.NewGuard(store, logger,
		reminder.WithGuardMode(reminder.GuardMode(cfg.RunGuardMode)),
		reminder.WithGuardLocation(cfg.Location()),
	)
}

func newSNSPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sns.Publisher, error) {
	if cfg.AWSEndpoint != "" {
		return sns.NewPublisherWithEndpoint(ctx, cfg.SNSTopicARN, cfg.AWSEndpoint, cfg.AWSRegion, logger)
	}
	return sns.NewPublisher(ctx, cfg.SNSTopicARN, logger, awsconfig.WithRegion(cfg.AWSRegion))
}

func newMailer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mailer.Mailer, error) {
	switch cfg.MailProvider {
	case config.MailSES:
		m, err := mailer.NewSESMailer(ctx, mailer.SESConfig{
			Region:   cfg.AWSRegion,
			Endpoint: cfg.AWSEndpoint,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES mailer: %w", err)
		}
		return m, nil
	case config.MailLog:
		logger.Warn("log mail provider selected, reminders are not delivered")
		return mailer.NewLogMailer(mailer.FormatAddress(cfg.MailFromName, cfg.MailFrom), logger), nil
	default:
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Secure:   cfg.SMTPSecure,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
			Timeout:  cfg.MailSendTimeout,
		}, logger), nil
	}
}

func runOnce(ctx context.Context, svc *reminder.Service, timeout time.Duration, logger *zap.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := svc.RunSweep(ctx)
	if err != nil {
		if errors.Is(err, reminder.ErrSweepInProgress) {
			return nil
		}
		return fmt.Errorf("reminder sweep failed: %w", err)
	}

	logger.Info("single sweep complete",
		zap.Bool("already_ran", report.AlreadyRan),
		zap.Int("sent", report.Sent()),
		zap.Int("failed", report.Failed()),
	)
	return nil
}
