// Package reporting implements the project and report lifecycle: input
// validation, derived metrics, baseline propagation and change events.
package reporting

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Service coordinates storage writes with derived-field computation and
// event publication.
type Service struct {
	store  storage.Storage
	events watch.Publisher
	now    func() time.Time
}

// NewService creates a service. events may be nil.
func NewService(store storage.Storage, events watch.Publisher) *Service {
	return &Service{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// publish emits an event. Delivery failures are logged and never fail the
// operation that produced them.
func (s *Service) publish(ctx context.Context, typ watch.EventType, projectID, reportID string, payload any) {
	if s.events == nil {
		return
	}
	ev, err := watch.NewEvent(typ, projectID, reportID, payload)
	if err != nil {
		zap.L().Warn("build event", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishErrors.Inc()
		zap.L().Warn("publish event",
			zap.String("type", string(typ)),
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(typ)).Inc()
}
