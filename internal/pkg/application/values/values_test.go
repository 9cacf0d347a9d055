package values

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

var operator = types.Principal{ID: "op-1", Name: "Olle Operator", Role: types.RoleOperator}

func TestSubmitBelowMinimum(t *testing.T) {
	is, ctx, svc, s, p := testSetup(t)
	addThreshold(ctx, is, s, "Temp", f(10), f(90), true)

	submission, err := svc.Submit(ctx, operator, 5)
	is.NoErr(err)
	is.Equal(submission.AlertsGenerated, 1)
	is.Equal(submission.Alerts[0].AlertType, types.MinBreach)
	is.Equal(submission.Alerts[0].ValueID, submission.Value.ID)
	is.Equal(submission.Value.SubmittedBy, "op-1")
	is.Equal(submission.Value.SubmittedByName, "Olle Operator")

	is.Equal(len(p.published), 1)
	is.Equal(p.published[0].TopicName(), "alerts.alertCreated")
}

func TestSubmitAboveMaximum(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)
	addThreshold(ctx, is, s, "Temp", f(10), f(90), true)

	submission, err := svc.Submit(ctx, operator, 95)
	is.NoErr(err)
	is.Equal(submission.AlertsGenerated, 1)
	is.Equal(submission.Alerts[0].AlertType, types.MaxBreach)
}

func TestSubmitWithinBounds(t *testing.T) {
	is, ctx, svc, s, p := testSetup(t)
	addThreshold(ctx, is, s, "Temp", f(10), f(90), true)

	submission, err := svc.Submit(ctx, operator, 50)
	is.NoErr(err)
	is.Equal(submission.AlertsGenerated, 0)
	is.Equal(len(submission.Alerts), 0)
	is.Equal(len(p.published), 0)

	values, _ := s.QueryValues(ctx)
	is.Equal(len(values), 1)
}

func TestOnlyActiveThresholdsGenerateAlerts(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)
	active := addThreshold(ctx, is, s, "active", f(10), nil, true)
	addThreshold(ctx, is, s, "inactive", f(10), nil, false)

	submission, err := svc.Submit(ctx, operator, 5)
	is.NoErr(err)
	is.Equal(submission.AlertsGenerated, 1)
	is.Equal(submission.Alerts[0].ThresholdID, active.ID)
}

func TestSubmitRejectsNonFiniteValues(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)

	_, err := svc.Submit(ctx, operator, math.NaN())
	is.True(errors.Is(err, types.ErrValidation))

	_, err = svc.Submit(ctx, operator, math.Inf(-1))
	is.True(errors.Is(err, types.ErrValidation))

	values, _ := s.QueryValues(ctx)
	is.Equal(len(values), 0)
}

func TestSubmitRequiresPrincipal(t *testing.T) {
	is, ctx, svc, _, _ := testSetup(t)

	_, err := svc.Submit(ctx, types.Principal{}, 1)
	is.True(errors.Is(err, types.ErrValidation))
}

func TestFailedPublishingDoesNotFailSubmission(t *testing.T) {
	is, ctx, svc, s, p := testSetup(t)
	addThreshold(ctx, is, s, "Temp", f(10), f(90), true)
	p.err = errors.New("broker down")

	submission, err := svc.Submit(ctx, operator, 5)
	is.NoErr(err)
	is.Equal(submission.AlertsGenerated, 1)

	alerts, _ := s.QueryAlerts(ctx)
	is.Equal(len(alerts), 1)
}

func TestFailedAlertInsertStoresNothing(t *testing.T) {
	is, ctx, _, s, p := testSetup(t)
	addThreshold(ctx, is, s, "Temp", f(10), nil, true)
	addThreshold(ctx, is, s, "Pressure", f(20), nil, true)

	svc := New(&failingAlertStore{Store: s}, p)

	_, err := svc.Submit(ctx, operator, 5)
	is.True(errors.Is(err, types.ErrPersistence))

	values, _ := s.QueryValues(ctx)
	is.Equal(len(values), 0)

	alerts, _ := s.QueryAlerts(ctx)
	is.Equal(len(alerts), 0)

	is.Equal(len(p.published), 0)
}

func TestDeactivatedThresholdOnlyAffectsLaterSubmissions(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)
	th := addThreshold(ctx, is, s, "Temp", f(10), nil, true)

	first, err := svc.Submit(ctx, operator, 5)
	is.NoErr(err)
	is.Equal(first.AlertsGenerated, 1)

	th.IsActive = false
	_, err = s.SaveThreshold(ctx, th)
	is.NoErr(err)

	second, err := svc.Submit(ctx, operator, 5)
	is.NoErr(err)
	is.Equal(second.AlertsGenerated, 0)

	alerts, _ := s.QueryAlerts(ctx)
	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].ValueID, first.Value.ID)
}

func TestListByPrincipalOnlyReturnsOwnValues(t *testing.T) {
	is, ctx, svc, _, _ := testSetup(t)

	other := types.Principal{ID: "op-2", Role: types.RoleOperator}

	svc.Submit(ctx, operator, 1)
	svc.Submit(ctx, other, 2)
	svc.Submit(ctx, operator, 3)

	mine, err := svc.ListByPrincipal(ctx, operator, 0, 0)
	is.NoErr(err)
	is.Equal(len(mine), 2)
	is.Equal(mine[0].Value, 3.0)
	is.Equal(mine[1].Value, 1.0)

	all, err := svc.ListAll(ctx, 0, 0)
	is.NoErr(err)
	is.Equal(len(all), 3)
}

func addThreshold(ctx context.Context, is *is.I, s database.Store, name string, min, max *float64, active bool) types.Threshold {
	t, err := s.AddThreshold(ctx, types.Threshold{Name: name, MinValue: min, MaxValue: max, IsActive: active})
	is.NoErr(err)
	return t
}

// failingAlertStore writes the first alert of a batch and then fails.
type failingAlertStore struct {
	database.Store
}

func (s *failingAlertStore) WithinTransaction(ctx context.Context, fn func(tx database.Store) error, opts ...database.TxOption) error {
	return s.Store.WithinTransaction(ctx, func(tx database.Store) error {
		return fn(&failingAlertStore{Store: tx})
	}, opts...)
}

func (s *failingAlertStore) AddAlerts(ctx context.Context, alerts []types.Alert) ([]types.Alert, error) {
	if len(alerts) > 0 {
		if _, err := s.Store.AddAlerts(ctx, alerts[:1]); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: could not add alerts", types.ErrPersistence)
}

type fakePublisher struct {
	published []events.TopicMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg events.TopicMessage) error {
	f.published = append(f.published, msg)
	return f.err
}

func (f *fakePublisher) Close() error {
	return nil
}

func f(v float64) *float64 {
	return &v
}

func testSetup(t *testing.T) (*is.I, context.Context, ValueService, database.Store, *fakePublisher) {
	is := is.New(t)

	s, err := database.New(database.NewSQLiteConnector(zerolog.Logger{}))
	is.NoErr(err)

	p := &fakePublisher{}

	return is, context.Background(), New(s, p), s, p
}
