package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
)

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...domain.Event) error {
	for _, e := range events {
		p.logger.Info("Domain event",
			zap.String("event_type", string(e.Type)),
			zap.String("aggregate_id", e.AggregateID),
			zap.Time("occurred_at", e.OccurredAt),
			zap.Any("payload", e.Payload),
		)
	}
	return nil
}
