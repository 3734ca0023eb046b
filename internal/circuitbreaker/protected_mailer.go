package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/mailer"
)

// ProtectedMailer wraps a mailer.Mailer with a CircuitBreaker. Malformed
// messages are rejected before they reach the breaker, and recipient
// rejections count as a healthy transport, so one bad address never opens
// the circuit for everyone else.
type ProtectedMailer struct {
	mailer  mailer.Mailer
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedMailer(m mailer.Mailer, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedMailer {
	return &ProtectedMailer{
		mailer:  m,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedMailer) Send(ctx context.Context, msg mailer.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	if !p.breaker.Allow() {
		stats := p.breaker.Stats()
		p.logger.Warn("circuit breaker rejected email",
			zap.String("breaker", stats.Name),
			zap.String("to", msg.To),
			zap.String("state", stats.State),
			zap.Int64("total_rejected", stats.TotalRejected),
			zap.String("last_failure", stats.LastFailure),
		)
		return fmt.Errorf("%w: %s mailer unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	if err := p.mailer.Send(ctx, msg); err != nil {
		if mailer.IsRecipientError(err) {
			p.breaker.RecordSuccess()
			return err
		}
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.Name()),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}
