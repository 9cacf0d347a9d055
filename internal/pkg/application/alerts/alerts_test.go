package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

var admin = types.Principal{ID: "admin-1", Role: types.RoleAdmin}

func TestResolveAlert(t *testing.T) {
	is, ctx, svc, s, p := testSetup(t)
	a := addAlert(ctx, is, s, "op-1")

	resolved, err := svc.Resolve(ctx, a.ID, admin)
	is.NoErr(err)
	is.True(resolved.IsResolved)
	is.Equal(resolved.ResolvedBy, "admin-1")
	is.True(resolved.ResolvedAt != nil)

	is.Equal(len(p.published), 1)
	is.Equal(p.published[0].TopicName(), "alerts.alertResolved")
}

func TestResolveIsIdempotent(t *testing.T) {
	is, ctx, svc, s, p := testSetup(t)
	a := addAlert(ctx, is, s, "op-1")

	first, _ := svc.Resolve(ctx, a.ID, admin)
	second, err := svc.Resolve(ctx, a.ID, types.Principal{ID: "admin-2", Role: types.RoleAdmin})
	is.NoErr(err)
	is.Equal(second.ResolvedBy, first.ResolvedBy)
	is.Equal(len(p.published), 1)
}

func TestResolveUnknownAlert(t *testing.T) {
	is, ctx, svc, _, _ := testSetup(t)

	_, err := svc.Resolve(ctx, 4711, admin)
	is.True(errors.Is(err, types.ErrNotFound))
}

func TestListFiltersOnResolution(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)
	a := addAlert(ctx, is, s, "op-1")
	addAlert(ctx, is, s, "op-2")
	svc.Resolve(ctx, a.ID, admin)

	all, err := svc.ListAll(ctx, Filter{})
	is.NoErr(err)
	is.Equal(len(all), 2)

	unresolved := false
	open, err := svc.ListAll(ctx, Filter{Resolved: &unresolved})
	is.NoErr(err)
	is.Equal(len(open), 1)
	is.Equal(open[0].Value.SubmittedBy, "op-2")
}

func TestListByPrincipal(t *testing.T) {
	is, ctx, svc, s, _ := testSetup(t)
	addAlert(ctx, is, s, "op-1")
	addAlert(ctx, is, s, "op-2")
	addAlert(ctx, is, s, "op-1")

	mine, err := svc.ListByPrincipal(ctx, types.Principal{ID: "op-1", Role: types.RoleOperator}, Filter{})
	is.NoErr(err)
	is.Equal(len(mine), 2)
	for _, a := range mine {
		is.Equal(a.Value.SubmittedBy, "op-1")
	}
}

func addAlert(ctx context.Context, is *is.I, s database.Store, submittedBy string) types.Alert {
	bound := 10.0
	th, err := s.GetThreshold(ctx, database.WithName("Temp"))
	if errors.Is(err, types.ErrNotFound) {
		th, err = s.AddThreshold(ctx, types.Threshold{Name: "Temp", MinValue: &bound, IsActive: true})
	}
	is.NoErr(err)

	v, err := s.AddValue(ctx, types.Value{Value: 5, SubmittedBy: submittedBy, SubmittedAt: time.Now()})
	is.NoErr(err)

	added, err := s.AddAlerts(ctx, []types.Alert{{
		AlertType:     types.MinBreach,
		AlertMessage:  "below",
		ValueID:       v.ID,
		ThresholdID:   th.ID,
		ThresholdName: th.Name,
		Bound:         bound,
		GeneratedAt:   time.Now(),
	}})
	is.NoErr(err)

	return added[0]
}

type fakePublisher struct {
	published []events.TopicMessage
}

func (f *fakePublisher) Publish(_ context.Context, msg events.TopicMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

func testSetup(t *testing.T) (*is.I, context.Context, AlertService, database.Store, *fakePublisher) {
	is := is.New(t)

	s, err := database.New(database.NewSQLiteConnector(zerolog.Logger{}))
	is.NoErr(err)

	p := &fakePublisher{}

	return is, context.Background(), New(s, p), s, p
}
