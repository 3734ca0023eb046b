package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/shelflife/internal/db"
	"github.com/lalithlochan/shelflife/internal/expiry"
	"github.com/lalithlochan/shelflife/internal/mailer"
	"github.com/lalithlochan/shelflife/internal/metrics"
)

// ErrSweepInProgress is returned when a sweep is triggered while another one
// is still running in this process.
var ErrSweepInProgress = errors.New("reminder sweep already in progress")

// ProductStore lists every product document.
type ProductStore interface {
	ListAllProducts(ctx context.Context) ([]db.Product, error)
}

// ReportPublisher receives the report of every sweep that got past the
// guard. Failures are logged and otherwise ignored.
type ReportPublisher interface {
	PublishSweepReport(ctx context.Context, report *Report) error
}

// NotifyMode selects how matches become messages.
type NotifyMode string

const (
	NotifyGrouped   NotifyMode = "grouped"
	NotifyPerRecord NotifyMode = "per_record"
)

type Config struct {
	Policy      expiry.Policy
	NotifyMode  NotifyMode
	Concurrency int
	SendTimeout time.Duration
	Location    *time.Location
}

// Service runs reminder sweeps.
type Service struct {
	products   ProductStore
	mailer     mailer.Mailer
	renderer   *mailer.Renderer
	guard      *Guard
	publishers []ReportPublisher
	config     Config
	now        func() time.Time
	logger     *zap.Logger

	running sync.Mutex
}

type Option func(*Service)

// WithGuard enables the run-once-per-day guard.
func WithGuard(g *Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithPublisher adds a destination for finished sweep reports. It may be
// given more than once.
func WithPublisher(p ReportPublisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(products ProductStore, m mailer.Mailer, renderer *mailer.Renderer, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.Policy == nil {
		cfg.Policy = expiry.NewFixedSet([]int{1, 6, 7, 30, 90, 180})
	}
	if cfg.NotifyMode == "" {
		cfg.NotifyMode = NotifyGrouped
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if renderer == nil {
		renderer = mailer.NewRenderer()
	}

	s := &Service{
		products: products,
		mailer:   m,
		renderer: renderer,
		config:   cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSweep performs one full sweep. It returns an error only when the run
// state or the product list cannot be read, or when another sweep is
// running. Per-product and per-recipient problems land in the report.
func (s *Service) RunSweep(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		metrics.RecordSweep("in_progress", 0)
		return nil, ErrSweepInProgress
	}
	defer s.running.Unlock()

	started := s.now()
	report := &Report{
		ID:        uuid.New(),
		Date:      expiry.DateKey(started, s.config.Location),
		StartedAt: started,
	}
	logger := s.logger.With(
		zap.String("sweep_id", report.ID.String()),
		zap.String("date", report.Date),
	)

	if s.guard != nil {
		ran, err := s.guard.begin(ctx, started)
		if err != nil {
			metrics.RecordSweep("error", s.now().Sub(started))
			logger.Error("run state check failed", zap.Error(err))
			return nil, err
		}
		if ran {
			report.AlreadyRan = true
			report.FinishedAt = s.now()
			metrics.RecordSweep("already_ran", report.Duration())
			return report, nil
		}
	}

	logger.Info("checking products",
		zap.String("policy", s.config.Policy.Name()),
		zap.String("notify_mode", string(s.config.NotifyMode)),
	)

	products, err := s.products.ListAllProducts(ctx)
	if err != nil {
		metrics.RecordSweep("error", s.now().Sub(started))
		logger.Error("listing products failed", zap.Error(err))
		return nil, fmt.Errorf("list products: %w", err)
	}
	report.Scanned = len(products)
	metrics.RecordScanned(len(products))

	matches := s.evaluate(products, started, report, logger)
	report.Matched = len(matches)
	metrics.RecordMatched(len(matches))

	report.Deliveries = s.dispatch(ctx, GroupByOwner(matches), logger)

	if s.guard != nil {
		if err := s.guard.complete(ctx, started); err != nil {
			logger.Error("recording run state failed", zap.Error(err))
		}
	}

	report.FinishedAt = s.now()
	metrics.RecordSweep("completed", report.Duration())

	logger.Info("reminder sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("matched", report.Matched),
		zap.Int("sent", report.Sent()),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", report.Duration()),
	)

	for _, p := range s.publishers {
		if err := p.PublishSweepReport(ctx, report); err != nil {
			logger.Warn("publishing sweep report failed", zap.Error(err))
		}
	}

	return report, nil
}

func (s *Service) evaluate(products []db.Product, now time.Time, report *Report, logger *zap.Logger) []Match {
	requireThreshold := s.config.Policy.RequiresThreshold()

	var matches []Match
	for _, p := range products {
		item, reason := Validate(p, requireThreshold)
		if reason != "" {
			logger.Warn("skipping product",
				zap.String("product_id", p.ID),
				zap.String("reason", string(reason)),
			)
			report.Skipped = append(report.Skipped, Skip{ProductID: p.ID, Reason: reason})
			metrics.RecordSkipped(string(reason))
			continue
		}

		daysLeft := expiry.DaysUntil(item.ExpiresAt, now)
		if s.config.Policy.Matches(daysLeft, item.Threshold) {
			matches = append(matches, Match{Item: item, DaysLeft: daysLeft})
		}
	}
	return matches
}

// outgoing is one message waiting to be sent.
type outgoing struct {
	delivery Delivery
	msg      mailer.Message
}

func (s *Service) build(groups []Group) []outgoing {
	var out []outgoing
	for _, g := range groups {
		switch s.config.NotifyMode {
		case NotifyPerRecord:
			for _, m := range g.Matches {
				msg, err := s.renderer.Single(g.Owner, lineFor(m))
				out = append(out, outgoing{
					delivery: Delivery{Recipient: g.Owner, Subject: msg.Subject, Products: []string{m.Product}, Err: err},
					msg:      msg,
				})
			}
		default:
			lines := make([]mailer.Line, len(g.Matches))
			for i, m := range g.Matches {
				lines[i] = lineFor(m)
			}
			msg, err := s.renderer.Digest(g.Owner, lines)
			out = append(out, outgoing{
				delivery: Delivery{Recipient: g.Owner, Subject: msg.Subject, Products: g.Products(), Err: err},
				msg:      msg,
			})
		}
	}
	return out
}

func lineFor(m Match) mailer.Line {
	return mailer.Line{Product: m.Product, Expiry: m.Expiry, DaysLeft: m.DaysLeft}
}

// dispatch sends every message with bounded concurrency. Each goroutine
// owns one slot of the result slice.
func (s *Service) dispatch(ctx context.Context, groups []Group, logger *zap.Logger) []Delivery {
	queue := s.build(groups)
	deliveries := make([]Delivery, len(queue))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)

	for i, o := range queue {
		if o.delivery.Err != nil {
			logger.Error("rendering reminder failed",
				zap.String("to", o.delivery.Recipient),
				zap.Error(o.delivery.Err),
			)
			deliveries[i] = o.delivery
			continue
		}

		g.Go(func() error {
			deliveries[i] = s.send(ctx, o, logger)
			return nil
		})
	}
	_ = g.Wait()

	return deliveries
}

func (s *Service) send(ctx context.Context, o outgoing, logger *zap.Logger) Delivery {
	d := o.delivery

	if s.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	d.Err = s.mailer.Send(ctx, o.msg)
	elapsed := time.Since(start)

	if d.Err != nil {
		metrics.RecordEmail("failed", elapsed)
		logger.Error("failed to email owner",
			zap.String("to", d.Recipient),
			zap.Strings("products", d.Products),
			zap.Error(d.Err),
		)
		return d
	}

	metrics.RecordEmail("sent", elapsed)
	logger.Info("reminder email sent",
		zap.String("to", d.Recipient),
		zap.Strings("products", d.Products),
	)
	return d
}
