package application

import (
	"context"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/application/alerts"
	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/application/reporting"
	"github.com/diwise/threshold-alerts/internal/pkg/application/thresholds"
	"github.com/diwise/threshold-alerts/internal/pkg/application/values"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
)

// App is the request/response boundary of the service. Callers are expected
// to have authenticated the principal and authorized the operation already.
type App interface {
	Start(ctx context.Context) error
	Stop()

	CreateThreshold(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error)
	UpdateThreshold(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error)
	DeleteThreshold(ctx context.Context, thresholdID uint) error
	ListThresholds(ctx context.Context, offset, limit int) ([]types.Threshold, error)
	GetThreshold(ctx context.Context, thresholdID uint) (types.Threshold, error)

	SubmitValue(ctx context.Context, principal types.Principal, value float64) (types.Submission, error)
	ListValues(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error)

	ListAlerts(ctx context.Context, principal types.Principal, filter alerts.Filter) ([]types.AlertDetails, error)
	ResolveAlert(ctx context.Context, principal types.Principal, alertID uint) (types.Alert, error)
}

type app struct {
	store     database.Store
	publisher events.Publisher
	seeds     []thresholds.SeedConfig

	thresholds thresholds.ThresholdService
	values     values.ValueService
	alerts     alerts.AlertService
	reporter   reporting.Reporter
}

func New(s database.Store, p events.Publisher, cfg *Config) (App, error) {
	if p == nil {
		p = events.NewNoopPublisher()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	policy, err := thresholds.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return nil, err
	}

	v := values.New(s, p)
	a := alerts.New(s, p)

	return &app{
		store:      s,
		publisher:  p,
		seeds:      cfg.Thresholds,
		thresholds: thresholds.New(s, policy),
		values:     v,
		alerts:     a,
		reporter:   reporting.New(v, a),
	}, nil
}

func (a *app) Start(ctx context.Context) error {
	return thresholds.Seed(ctx, a.store, a.seeds)
}

func (a *app) Stop() {
	logger := logging.GetFromContext(context.Background())

	if err := a.publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := a.store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close database")
	}
}

func (a *app) CreateThreshold(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error) {
	return a.thresholds.Create(ctx, req)
}

func (a *app) UpdateThreshold(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error) {
	return a.thresholds.Update(ctx, thresholdID, req)
}

func (a *app) DeleteThreshold(ctx context.Context, thresholdID uint) error {
	return a.thresholds.Delete(ctx, thresholdID)
}

func (a *app) ListThresholds(ctx context.Context, offset, limit int) ([]types.Threshold, error) {
	return a.thresholds.List(ctx, offset, limit)
}

func (a *app) GetThreshold(ctx context.Context, thresholdID uint) (types.Threshold, error) {
	return a.thresholds.Get(ctx, thresholdID)
}

func (a *app) SubmitValue(ctx context.Context, principal types.Principal, value float64) (types.Submission, error) {
	return a.values.Submit(ctx, principal, value)
}

func (a *app) ListValues(ctx context.Context, principal types.Principal, offset, limit int) ([]types.Value, error) {
	return a.reporter.Values(ctx, principal, offset, limit)
}

func (a *app) ListAlerts(ctx context.Context, principal types.Principal, filter alerts.Filter) ([]types.AlertDetails, error) {
	return a.reporter.Alerts(ctx, principal, filter)
}

func (a *app) ResolveAlert(ctx context.Context, principal types.Principal, alertID uint) (types.Alert, error) {
	return a.alerts.Resolve(ctx, alertID, principal)
}
