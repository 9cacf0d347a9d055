package values

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/application/evaluator"
	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/metrics"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
)

type ValueService interface {
	Submit(ctx context.Context, principal types.Principal, value float64) (types.Submission, error)
	ListByPrincipal(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error)
	ListAll(ctx context.Context, offset, limit int) ([]types.Value, error)
}

type valueSvc struct {
	store     database.Store
	publisher events.Publisher
	now       func() time.Time
}

func New(s database.Store, p events.Publisher) ValueService {
	if p == nil {
		p = events.NewNoopPublisher()
	}

	return &valueSvc{
		store:     s,
		publisher: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a value and evaluates it against the active thresholds in
// a single transaction. Either the value and every alert it caused are
// stored, or nothing is.
func (svc *valueSvc) Submit(ctx context.Context, principal types.Principal, value float64) (types.Submission, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		metrics.SubmissionsFailed.WithLabelValues("validation").Inc()
		return types.Submission{}, fmt.Errorf("%w: value must be a finite number", types.ErrValidation)
	}
	if principal.ID == "" {
		metrics.SubmissionsFailed.WithLabelValues("validation").Inc()
		return types.Submission{}, fmt.Errorf("%w: value must be attributed to a principal", types.ErrValidation)
	}

	submission := types.Submission{}

	err := svc.store.WithinTransaction(ctx, func(tx database.Store) error {
		v, err := tx.AddValue(ctx, types.Value{
			Value:           value,
			SubmittedBy:     principal.ID,
			SubmittedByName: principal.Name,
			SubmittedAt:     svc.now(),
		})
		if err != nil {
			return err
		}

		active, err := tx.QueryThresholds(ctx, database.WithActive(true))
		if err != nil {
			return err
		}

		alerts, err := tx.AddAlerts(ctx, evaluator.Evaluate(v, active))
		if err != nil {
			return err
		}

		submission = types.Submission{
			Value:           v,
			AlertsGenerated: len(alerts),
			Alerts:          alerts,
		}

		return nil
	}, database.WithSnapshot())
	if err != nil {
		reason := "persistence"
		if errors.Is(err, types.ErrValidation) {
			reason = "validation"
		}
		metrics.SubmissionsFailed.WithLabelValues(reason).Inc()
		return types.Submission{}, err
	}

	metrics.ValuesSubmitted.Inc()

	messages := make([]events.TopicMessage, 0, len(submission.Alerts))
	for _, a := range submission.Alerts {
		metrics.AlertsGenerated.WithLabelValues(string(a.AlertType)).Inc()
		messages = append(messages, &types.AlertCreated{
			Alert:     a,
			Value:     submission.Value.Value,
			Principal: principal.ID,
			Timestamp: a.GeneratedAt,
		})
	}

	logger := logging.GetFromContext(ctx)
	logger.Debug().
		Uint("value_id", submission.Value.ID).
		Int("alerts", submission.AlertsGenerated).
		Msg("value submitted and evaluated")

	events.PublishAll(ctx, svc.publisher, messages...)

	return submission, nil
}

func (svc *valueSvc) ListByPrincipal(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error) {
	if principal.ID == "" {
		return nil, fmt.Errorf("%w: missing principal", types.ErrValidation)
	}
	return svc.store.QueryValues(ctx, database.WithSubmittedBy(principal.ID), database.WithOffset(offset), database.WithLimit(limit))
}

func (svc *valueSvc) ListAll(ctx context.Context, offset, limit int) ([]types.Value, error) {
	return svc.store.QueryValues(ctx, database.WithOffset(offset), database.WithLimit(limit))
}
