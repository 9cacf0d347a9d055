package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/metrics"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
)

type Filter struct {
	Offset   int
	Limit    int
	Resolved *bool
}

func (f Filter) conditions() []database.ConditionFunc {
	conditions := []database.ConditionFunc{database.WithOffset(f.Offset), database.WithLimit(f.Limit)}
	if f.Resolved != nil {
		conditions = append(conditions, database.WithResolved(*f.Resolved))
	}
	return conditions
}

type AlertService interface {
	Resolve(ctx context.Context, alertID uint, resolvedBy types.Principal) (types.Alert, error)
	ListAll(ctx context.Context, filter Filter) ([]types.AlertDetails, error)
	ListByPrincipal(ctx context.Context, principal types.Principal, filter Filter) ([]types.AlertDetails, error)
}

type alertSvc struct {
	store     database.Store
	publisher events.Publisher
}

func New(s database.Store, p events.Publisher) AlertService {
	if p == nil {
		p = events.NewNoopPublisher()
	}

	return &alertSvc{
		store:     s,
		publisher: p,
	}
}

// Resolve marks an alert as resolved. Resolving an alert that is already
// resolved returns it unchanged and publishes nothing.
func (svc *alertSvc) Resolve(ctx context.Context, alertID uint, resolvedBy types.Principal) (types.Alert, error) {
	alert, changed, err := svc.store.ResolveAlert(ctx, alertID, resolvedBy.ID, time.Now().UTC())
	if err != nil {
		return types.Alert{}, err
	}

	if !changed {
		return alert, nil
	}

	metrics.AlertsResolved.Inc()

	logger := logging.GetFromContext(ctx)
	logger.Info().Uint("alert_id", alert.ID).Str("resolved_by", resolvedBy.ID).Msg("alert resolved")

	events.PublishAll(ctx, svc.publisher, &types.AlertResolved{
		ID:         alert.ID,
		ResolvedBy: alert.ResolvedBy,
		Timestamp:  *alert.ResolvedAt,
	})

	return alert, nil
}

func (svc *alertSvc) ListAll(ctx context.Context, filter Filter) ([]types.AlertDetails, error) {
	return svc.store.QueryAlerts(ctx, filter.conditions()...)
}

// ListByPrincipal returns the alerts caused by values the principal submitted.
func (svc *alertSvc) ListByPrincipal(ctx context.Context, principal types.Principal, filter Filter) ([]types.AlertDetails, error) {
	if principal.ID == "" {
		return nil, fmt.Errorf("%w: missing principal", types.ErrValidation)
	}
	return svc.store.QueryAlerts(ctx, append(filter.conditions(), database.WithSubmittedBy(principal.ID))...)
}
