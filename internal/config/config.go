package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run guard backends
const (
	GuardRedis    = "redis"
	GuardPostgres = "postgres"
	GuardNone     = "none"
)

// Run guard modes
const (
	GuardMarkBefore = "mark_before"
	GuardMarkAfter  = "mark_after"
)

// Mail providers
const (
	MailSMTP = "smtp"
	MailSES  = "ses"
	MailLog  = "log"
)

// Reminder policies
const (
	PolicyFixed     = "fixed"
	PolicyPerRecord = "per_record"
)

// Notify modes
const (
	NotifyGrouped   = "grouped"
	NotifyPerRecord = "per_record"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string
	Timezone string

	// Database (product store)
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Run-once guard
	RunGuard     string // redis, postgres or none
	RunGuardMode string // mark_before or mark_after

	// Reminder matching
	ReminderPolicy     string
	ReminderMilestones []int
	NotifyMode         string

	// Mail transport
	MailProvider    string
	MailFrom        string // sender email address
	MailFromName    string // sender display name
	MailConcurrency int
	MailSendTimeout time.Duration

	// SMTP config for email sending
	SMTPHost     string
	SMTPPort     int
	SMTPSecure   bool // implicit TLS (port 465 style)
	SMTPUsername string
	SMTPPassword string

	// AWS Services
	AWSRegion   string
	SNSTopicARN string // sweep summary events, optional
	SQSQueueURL string // sweep summary queue, optional
	AWSEndpoint string // endpoint override (LocalStack), optional

	// Scheduling
	CronSpec     string // empty disables the in-process scheduler
	SweepTimeout time.Duration

	// Circuit breaker around the mail transport
	BreakerMaxFailures     int
	BreakerRecoveryTimeout time.Duration

	// Rate limit on the HTTP trigger, per client IP
	RateLimitPerMinute int
}

// DefaultMilestones are the reminder days used by the fixed policy.
var DefaultMilestones = []int{1, 6, 7, 30, 90, 180}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present; it never
// overrides variables that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",
		Timezone: "UTC",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "shelflife",
		DBName:    "shelflife",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		RunGuard:     GuardRedis,
		RunGuardMode: GuardMarkBefore,

		ReminderPolicy:     PolicyFixed,
		ReminderMilestones: append([]int(nil), DefaultMilestones...),
		NotifyMode:         NotifyGrouped,

		MailProvider:    MailSMTP,
		MailFromName:    "Expiry Reminder",
		MailConcurrency: 4,
		MailSendTimeout: 30 * time.Second,

		SMTPPort:   465,
		SMTPSecure: true,

		AWSRegion: "us-east-1",

		CronSpec:     "0 9 * * *",
		SweepTimeout: 5 * time.Minute,

		BreakerMaxFailures:     5,
		BreakerRecoveryTimeout: 30 * time.Second,

		RateLimitPerMinute: 10,
	}

	var err error

	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}
	if cfg.DBPort, err = intEnv("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}
	if cfg.RedisPort, err = intEnv("REDIS_PORT", cfg.RedisPort); err != nil {
		return nil, err
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}

	// Guard
	if guard := os.Getenv("RUN_GUARD"); guard != "" {
		cfg.RunGuard = strings.ToLower(guard)
	}
	switch cfg.RunGuard {
	case GuardRedis, GuardPostgres, GuardNone:
	default:
		return nil, fmt.Errorf("invalid RUN_GUARD %q: must be redis, postgres or none", cfg.RunGuard)
	}

	if mode := os.Getenv("RUN_GUARD_MODE"); mode != "" {
		cfg.RunGuardMode = strings.ToLower(mode)
	}
	if cfg.RunGuardMode != GuardMarkBefore && cfg.RunGuardMode != GuardMarkAfter {
		return nil, fmt.Errorf("invalid RUN_GUARD_MODE %q: must be mark_before or mark_after", cfg.RunGuardMode)
	}

	// Reminder policy
	if policy := os.Getenv("REMINDER_POLICY"); policy != "" {
		cfg.ReminderPolicy = strings.ToLower(policy)
	}
	if cfg.ReminderPolicy != PolicyFixed && cfg.ReminderPolicy != PolicyPerRecord {
		return nil, fmt.Errorf("invalid REMINDER_POLICY %q: must be fixed or per_record", cfg.ReminderPolicy)
	}

	if raw := os.Getenv("REMINDER_MILESTONES"); raw != "" {
		milestones, err := parseMilestones(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REMINDER_MILESTONES: %w", err)
		}
		cfg.ReminderMilestones = milestones
	}

	if mode := os.Getenv("NOTIFY_MODE"); mode != "" {
		cfg.NotifyMode = strings.ToLower(mode)
	}
	if cfg.NotifyMode != NotifyGrouped && cfg.NotifyMode != NotifyPerRecord {
		return nil, fmt.Errorf("invalid NOTIFY_MODE %q: must be grouped or per_record", cfg.NotifyMode)
	}

	// Mail
	if provider := os.Getenv("MAIL_PROVIDER"); provider != "" {
		cfg.MailProvider = strings.ToLower(provider)
	}
	if name := os.Getenv("MAIL_FROM_NAME"); name != "" {
		cfg.MailFromName = name
	}
	if cfg.MailConcurrency, err = intEnv("MAIL_CONCURRENCY", cfg.MailConcurrency); err != nil {
		return nil, err
	}
	if cfg.MailConcurrency < 1 {
		return nil, fmt.Errorf("invalid MAIL_CONCURRENCY: must be >= 1")
	}
	if cfg.MailSendTimeout, err = durationEnv("MAIL_SEND_TIMEOUT", cfg.MailSendTimeout); err != nil {
		return nil, err
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	if secure := os.Getenv("SMTP_SECURE"); secure != "" {
		b, err := strconv.ParseBool(secure)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_SECURE: %w", err)
		}
		cfg.SMTPSecure = b
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTPUsername = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTPPassword = pass
	}

	// Default the sender to the authenticated SMTP account.
	cfg.MailFrom = cfg.SMTPUsername
	if from := os.Getenv("MAIL_FROM"); from != "" {
		cfg.MailFrom = from
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}
	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		cfg.SNSTopicARN = arn
	}
	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		cfg.AWSEndpoint = endpoint
	}

	switch cfg.MailProvider {
	case MailSMTP:
		if cfg.SMTPHost == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			return nil, fmt.Errorf("smtp mail provider requires SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD")
		}
	case MailSES:
		if cfg.MailFrom == "" {
			return nil, fmt.Errorf("ses mail provider requires MAIL_FROM")
		}
	case MailLog:
	default:
		return nil, fmt.Errorf("invalid MAIL_PROVIDER %q: must be smtp, ses or log", cfg.MailProvider)
	}

	// Scheduling
	if spec, ok := os.LookupEnv("CRON_SPEC"); ok {
		cfg.CronSpec = strings.TrimSpace(spec)
	}
	if cfg.SweepTimeout, err = durationEnv("SWEEP_TIMEOUT", cfg.SweepTimeout); err != nil {
		return nil, err
	}

	if cfg.BreakerMaxFailures, err = intEnv("BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return nil, err
	}
	if cfg.BreakerRecoveryTimeout, err = durationEnv("BREAKER_RECOVERY_TIMEOUT", cfg.BreakerRecoveryTimeout); err != nil {
		return nil, err
	}

	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location returns the time zone used to compute the run guard's day key.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseMilestones(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("milestone %q: %w", p, err)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no milestones given")
	}
	return out, nil
}
