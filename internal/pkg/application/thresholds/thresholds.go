package thresholds

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
)

type DeletePolicy string

const (
	// SoftDelete deactivates and hides a threshold but keeps its row so that
	// alerts keep resolving their reference.
	SoftDelete DeletePolicy = "soft"
	// RestrictDelete removes unreferenced thresholds and refuses to remove
	// thresholds that alerts refer to.
	RestrictDelete DeletePolicy = "restrict"
)

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SoftDelete:
		return SoftDelete, nil
	case RestrictDelete:
		return RestrictDelete, nil
	}
	return "", fmt.Errorf("unknown delete policy %q", s)
}

type ThresholdService interface {
	Create(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error)
	Update(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error)
	Delete(ctx context.Context, thresholdID uint) error
	List(ctx context.Context, offset, limit int) ([]types.Threshold, error)
	Get(ctx context.Context, thresholdID uint) (types.Threshold, error)
}

type thresholdSvc struct {
	store  database.Store
	policy DeletePolicy
}

func New(s database.Store, policy DeletePolicy) ThresholdService {
	if policy == "" {
		policy = SoftDelete
	}

	return &thresholdSvc{
		store:  s,
		policy: policy,
	}
}

func (svc *thresholdSvc) Create(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error) {
	t := types.Threshold{
		Name:     strings.TrimSpace(req.Name),
		MinValue: req.MinValue,
		MaxValue: req.MaxValue,
		IsActive: true,
	}

	if err := Validate(t); err != nil {
		return types.Threshold{}, err
	}

	created, err := svc.store.AddThreshold(ctx, t)
	if err != nil {
		return types.Threshold{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Uint("threshold_id", created.ID).Str("name", created.Name).Msg("threshold created")

	return created, nil
}

// Update applies a partial update. The row is locked for the duration of the
// update so concurrent edits of the same threshold are serialized.
func (svc *thresholdSvc) Update(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error) {
	var updated types.Threshold

	err := svc.store.WithinTransaction(ctx, func(tx database.Store) error {
		current, err := tx.GetThreshold(ctx, database.WithID(thresholdID), database.WithRowLock())
		if err != nil {
			return err
		}

		patched := Patch(current, req)
		if err := Validate(patched); err != nil {
			return err
		}

		updated, err = tx.SaveThreshold(ctx, patched)
		return err
	})
	if err != nil {
		return types.Threshold{}, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Uint("threshold_id", updated.ID).Bool("active", updated.IsActive).Msg("threshold updated")

	return updated, nil
}

func (svc *thresholdSvc) Delete(ctx context.Context, thresholdID uint) error {
	err := svc.store.DeleteThreshold(ctx, thresholdID, svc.policy == RestrictDelete)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Uint("threshold_id", thresholdID).Str("policy", string(svc.policy)).Msg("threshold deleted")

	return nil
}

func (svc *thresholdSvc) List(ctx context.Context, offset, limit int) ([]types.Threshold, error) {
	return svc.store.QueryThresholds(ctx, database.WithOffset(offset), database.WithLimit(limit))
}

func (svc *thresholdSvc) Get(ctx context.Context, thresholdID uint) (types.Threshold, error) {
	return svc.store.GetThreshold(ctx, database.WithID(thresholdID))
}

// Patch returns t with the fields present in req applied.
func Patch(t types.Threshold, req types.UpdateThresholdRequest) types.Threshold {
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.MinValue.Present {
		t.MinValue = req.MinValue.Value
	}
	if req.MaxValue.Present {
		t.MaxValue = req.MaxValue.Value
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	return t
}

func Validate(t types.Threshold) error {
	if t.Name == "" {
		return fmt.Errorf("%w: threshold name must not be empty", types.ErrValidation)
	}
	if t.MinValue != nil && !isFinite(*t.MinValue) {
		return fmt.Errorf("%w: minValue must be a finite number", types.ErrValidation)
	}
	if t.MaxValue != nil && !isFinite(*t.MaxValue) {
		return fmt.Errorf("%w: maxValue must be a finite number", types.ErrValidation)
	}
	if t.MinValue != nil && t.MaxValue != nil && *t.MinValue > *t.MaxValue {
		return fmt.Errorf("%w: minValue (%g) must not be greater than maxValue (%g)", types.ErrValidation, *t.MinValue, *t.MaxValue)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
