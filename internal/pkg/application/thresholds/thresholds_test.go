package thresholds

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestCreateThreshold(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	created, err := svc.Create(ctx, types.CreateThresholdRequest{Name: "  Temp ", MinValue: f(10), MaxValue: f(90)})
	is.NoErr(err)
	is.Equal(created.Name, "Temp")
	is.True(created.IsActive)
	is.True(created.ID != 0)
}

func TestCreateThresholdValidation(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	_, err := svc.Create(ctx, types.CreateThresholdRequest{Name: " "})
	is.True(errors.Is(err, types.ErrValidation))

	_, err = svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(90), MaxValue: f(10)})
	is.True(errors.Is(err, types.ErrValidation))

	_, err = svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MaxValue: f(math.Inf(1))})
	is.True(errors.Is(err, types.ErrValidation))

	_, err = svc.Create(ctx, types.CreateThresholdRequest{Name: "Equal", MinValue: f(10), MaxValue: f(10)})
	is.NoErr(err)
}

func TestUpdateOnlyChangesSuppliedFields(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	created, _ := svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(10), MaxValue: f(90)})

	inactive := false
	updated, err := svc.Update(ctx, created.ID, types.UpdateThresholdRequest{IsActive: &inactive})
	is.NoErr(err)
	is.Equal(updated.Name, "Temp")
	is.Equal(*updated.MinValue, 10.0)
	is.Equal(*updated.MaxValue, 90.0)
	is.True(!updated.IsActive)

	updated, err = svc.Update(ctx, created.ID, types.UpdateThresholdRequest{MinValue: types.Clear(), MaxValue: types.Set(100)})
	is.NoErr(err)
	is.True(updated.MinValue == nil)
	is.Equal(*updated.MaxValue, 100.0)
}

func TestUpdateRejectsInvertedBounds(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	created, _ := svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(10), MaxValue: f(90)})

	_, err := svc.Update(ctx, created.ID, types.UpdateThresholdRequest{MinValue: types.Set(95)})
	is.True(errors.Is(err, types.ErrValidation))

	unchanged, _ := svc.Get(ctx, created.ID)
	is.Equal(*unchanged.MinValue, 10.0)
}

func TestUpdateUnknownThreshold(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	name := "x"
	_, err := svc.Update(ctx, 4711, types.UpdateThresholdRequest{Name: &name})
	is.True(errors.Is(err, types.ErrNotFound))
}

func TestSoftDeleteKeepsReferencedAlerts(t *testing.T) {
	is, ctx, svc, s := testSetup(t, SoftDelete)

	created, _ := svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(10)})
	referenceThreshold(ctx, is, s, created)

	is.NoErr(svc.Delete(ctx, created.ID))

	_, err := svc.Get(ctx, created.ID)
	is.True(errors.Is(err, types.ErrNotFound))

	alerts, err := s.QueryAlerts(ctx)
	is.NoErr(err)
	is.Equal(len(alerts), 1)
	is.True(alerts[0].Threshold.Deleted)

	is.True(errors.Is(svc.Delete(ctx, created.ID), types.ErrNotFound))
}

func TestRestrictDeleteRefusesReferencedThreshold(t *testing.T) {
	is, ctx, svc, s := testSetup(t, RestrictDelete)

	created, _ := svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(10)})
	referenceThreshold(ctx, is, s, created)

	err := svc.Delete(ctx, created.ID)
	is.True(errors.Is(err, types.ErrReferentialIntegrity))

	unused, _ := svc.Create(ctx, types.CreateThresholdRequest{Name: "Unused"})
	is.NoErr(svc.Delete(ctx, unused.ID))
}

func TestListIsOrderedByCreation(t *testing.T) {
	is, ctx, svc, _ := testSetup(t, SoftDelete)

	svc.Create(ctx, types.CreateThresholdRequest{Name: "a"})
	svc.Create(ctx, types.CreateThresholdRequest{Name: "b"})
	svc.Create(ctx, types.CreateThresholdRequest{Name: "c"})

	all, err := svc.List(ctx, 0, 0)
	is.NoErr(err)
	is.Equal(len(all), 3)
	is.Equal(all[0].Name, "a")
	is.Equal(all[1].Name, "b")
	is.Equal(all[2].Name, "c")

	page, _ := svc.List(ctx, 1, 1)
	is.Equal(len(page), 1)
	is.Equal(page[0].Name, "b")
}

func TestSeedSkipsExistingThresholds(t *testing.T) {
	is, ctx, svc, s := testSetup(t, SoftDelete)

	svc.Create(ctx, types.CreateThresholdRequest{Name: "Temp", MinValue: f(0)})

	inactive := false
	err := Seed(ctx, s, []SeedConfig{
		{Name: "Temp", MinValue: f(10), MaxValue: f(90)},
		{Name: "Humidity", MaxValue: f(80), Active: &inactive},
	})
	is.NoErr(err)

	all, _ := svc.List(ctx, 0, 0)
	is.Equal(len(all), 2)
	is.Equal(*all[0].MinValue, 0.0)
	is.Equal(all[1].Name, "Humidity")
	is.True(!all[1].IsActive)
}

func TestSeedDoesNotRecreateDeletedThresholds(t *testing.T) {
	is, ctx, svc, s := testSetup(t, SoftDelete)

	seeds := []SeedConfig{{Name: "Temp", MinValue: f(10), MaxValue: f(90)}}
	is.NoErr(Seed(ctx, s, seeds))

	all, _ := svc.List(ctx, 0, 0)
	is.Equal(len(all), 1)
	is.NoErr(svc.Delete(ctx, all[0].ID))

	is.NoErr(Seed(ctx, s, seeds))

	all, _ = svc.List(ctx, 0, 0)
	is.Equal(len(all), 0)
}

func TestSeedReportsInvalidThresholds(t *testing.T) {
	is, ctx, _, s := testSetup(t, SoftDelete)

	err := Seed(ctx, s, []SeedConfig{{Name: "broken", MinValue: f(2), MaxValue: f(1)}})
	is.True(errors.Is(err, types.ErrValidation))
}

func TestParseDeletePolicy(t *testing.T) {
	is := is.New(t)

	p, err := ParseDeletePolicy("")
	is.NoErr(err)
	is.Equal(p, SoftDelete)

	p, err = ParseDeletePolicy("RESTRICT")
	is.NoErr(err)
	is.Equal(p, RestrictDelete)

	_, err = ParseDeletePolicy("cascade")
	is.True(err != nil)
}

func referenceThreshold(ctx context.Context, is *is.I, s database.Store, t types.Threshold) {
	v, err := s.AddValue(ctx, types.Value{Value: 5, SubmittedBy: "op-1", SubmittedAt: time.Now()})
	is.NoErr(err)

	_, err = s.AddAlerts(ctx, []types.Alert{{
		AlertType:     types.MinBreach,
		AlertMessage:  "below",
		ValueID:       v.ID,
		ThresholdID:   t.ID,
		ThresholdName: t.Name,
		Bound:         10,
		GeneratedAt:   time.Now(),
	}})
	is.NoErr(err)
}

func f(v float64) *float64 {
	return &v
}

func testSetup(t *testing.T, policy DeletePolicy) (*is.I, context.Context, ThresholdService, database.Store) {
	is := is.New(t)

	s, err := database.New(database.NewSQLiteConnector(zerolog.Logger{}))
	is.NoErr(err)

	return is, context.Background(), New(s, policy), s
}
