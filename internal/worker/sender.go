package worker

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deliverer sends one stored message.
type Deliverer interface {
	Deliver(ctx context.Context, messageID string) error
}

// Sender throttles deliveries in front of the gateway.
type Sender struct {
	deliverer Deliverer
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewSender allows perSecond deliveries with bursts of burst.
// perSecond <= 0 disables throttling.
func NewSender(deliverer Deliverer, perSecond float64, burst int, logger *zap.Logger) *Sender {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Sender{
		deliverer: deliverer,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

// Handle waits for a send slot and delivers the job's message.
// Its signature matches queue.Handler.
func (s *Sender) Handle(ctx context.Context, job domain.DispatchJob) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.deliverer.Deliver(ctx, job.MessageID); err != nil {
		s.logger.Warn("delivery failed",
			zap.String("job_id", job.JobID),
			zap.String("message_id", job.MessageID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
