package config

import (
	"reflect"
	"testing"
	"time"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAIL_PROVIDER", "log")
}

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.Env != "development" {
		t.Errorf("expected env 'development', got %s", cfg.Env)
	}
	if cfg.RunGuardMode != GuardMarkBefore {
		t.Errorf("expected guard mode mark_before, got %s", cfg.RunGuardMode)
	}
	if !reflect.DeepEqual(cfg.ReminderMilestones, []int{1, 6, 7, 30, 90, 180}) {
		t.Errorf("unexpected milestones: %v", cfg.ReminderMilestones)
	}
	if cfg.MailFromName != "Expiry Reminder" {
		t.Errorf("expected sender name 'Expiry Reminder', got %s", cfg.MailFromName)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENV", "production")
	t.Setenv("REMINDER_POLICY", "per_record")
	t.Setenv("REMINDER_MILESTONES", "3, 14")
	t.Setenv("RUN_GUARD", "postgres")
	t.Setenv("RUN_GUARD_MODE", "mark_after")
	t.Setenv("SWEEP_TIMEOUT", "90s")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.eu-central-1.amazonaws.com/1/sweeps")
	t.Setenv("AWS_ENDPOINT_URL", "http://localhost:4566")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected env 'production', got %s", cfg.Env)
	}
	if cfg.ReminderPolicy != PolicyPerRecord {
		t.Errorf("expected per_record policy, got %s", cfg.ReminderPolicy)
	}
	if !reflect.DeepEqual(cfg.ReminderMilestones, []int{3, 14}) {
		t.Errorf("unexpected milestones: %v", cfg.ReminderMilestones)
	}
	if cfg.RunGuard != GuardPostgres || cfg.RunGuardMode != GuardMarkAfter {
		t.Errorf("unexpected guard config: %s/%s", cfg.RunGuard, cfg.RunGuardMode)
	}
	if cfg.SweepTimeout != 90*time.Second {
		t.Errorf("expected 90s sweep timeout, got %v", cfg.SweepTimeout)
	}
	if cfg.SQSQueueURL != "https://sqs.eu-central-1.amazonaws.com/1/sweeps" {
		t.Errorf("unexpected queue url %s", cfg.SQSQueueURL)
	}
	if cfg.AWSEndpoint != "http://localhost:4566" {
		t.Errorf("unexpected aws endpoint %s", cfg.AWSEndpoint)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin, got %s", cfg.Location())
	}
}

func TestLoad_MissingSMTPCredentials(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "smtp")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "")
	t.Setenv("SMTP_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing smtp credentials")
	}
}

func TestLoad_SMTPSenderDefaultsToUsername(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "smtp")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "reminders@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("MAIL_FROM", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MailFrom != "reminders@example.com" {
		t.Errorf("expected sender to default to username, got %q", cfg.MailFrom)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "PORT", "not-a-number"},
		{"bad policy", "REMINDER_POLICY", "weekly"},
		{"bad milestones", "REMINDER_MILESTONES", "1,x"},
		{"empty milestones", "REMINDER_MILESTONES", ","},
		{"bad guard", "RUN_GUARD", "etcd"},
		{"bad guard mode", "RUN_GUARD_MODE", "sometimes"},
		{"bad notify mode", "NOTIFY_MODE", "digest"},
		{"bad provider", "MAIL_PROVIDER", "pigeon"},
		{"bad timeout", "MAIL_SEND_TIMEOUT", "soon"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus"},
		{"zero concurrency", "MAIL_CONCURRENCY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_EmptyCronSpecDisablesScheduler(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("CRON_SPEC", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CronSpec != "" {
		t.Errorf("expected empty cron spec, got %q", cfg.CronSpec)
	}
}
