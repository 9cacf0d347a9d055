package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ThresholdRepository interface {
	AddThreshold(ctx context.Context, t types.Threshold) (types.Threshold, error)
	SaveThreshold(ctx context.Context, t types.Threshold) (types.Threshold, error)
	GetThreshold(ctx context.Context, conditions ...ConditionFunc) (types.Threshold, error)
	QueryThresholds(ctx context.Context, conditions ...ConditionFunc) ([]types.Threshold, error)
	DeleteThreshold(ctx context.Context, thresholdID uint, permanently bool) error
}

func (c Condition) thresholds(query *gorm.DB) *gorm.DB {
	if c.IncludeDeleted {
		query = query.Unscoped()
	}
	if c.ID != 0 {
		query = query.Where("id = ?", c.ID)
	}
	if c.Name != "" {
		query = query.Where("name = ?", c.Name)
	}
	if c.Active != nil {
		query = query.Where("active = ?", *c.Active)
	}

	query = c.lock(query)

	return c.paginate(query)
}

func (s *store) AddThreshold(ctx context.Context, t types.Threshold) (types.Threshold, error) {
	row := fromThreshold(t)
	row.ID = 0

	err := s.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		return types.Threshold{}, storageError(ctx, err, "could not add threshold")
	}

	return toThreshold(row), nil
}

// SaveThreshold writes every column of an existing threshold, so a nil bound
// is persisted as NULL.
func (s *store) SaveThreshold(ctx context.Context, t types.Threshold) (types.Threshold, error) {
	existing := Threshold{}

	err := s.db.WithContext(ctx).Where("id = ?", t.ID).First(&existing).Error
	if err != nil {
		return types.Threshold{}, storageError(ctx, err, fmt.Sprintf("could not find threshold %d", t.ID))
	}

	existing.Name = t.Name
	existing.MinValue = t.MinValue
	existing.MaxValue = t.MaxValue
	existing.Active = t.IsActive

	err = s.db.WithContext(ctx).Save(&existing).Error
	if err != nil {
		return types.Threshold{}, storageError(ctx, err, fmt.Sprintf("could not save threshold %d", t.ID))
	}

	return toThreshold(existing), nil
}

func (s *store) GetThreshold(ctx context.Context, conditions ...ConditionFunc) (types.Threshold, error) {
	c := newCondition(conditions...)
	row := Threshold{}

	err := c.thresholds(s.db.WithContext(ctx)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Threshold{}, fmt.Errorf("%w: threshold %d", types.ErrNotFound, c.ID)
		}
		return types.Threshold{}, storageError(ctx, err, "could not fetch threshold")
	}

	return toThreshold(row), nil
}

func (s *store) QueryThresholds(ctx context.Context, conditions ...ConditionFunc) ([]types.Threshold, error) {
	c := newCondition(conditions...)
	rows := []Threshold{}

	err := c.thresholds(s.db.WithContext(ctx)).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(ctx, err, "could not query thresholds")
	}

	return lo.Map(rows, func(t Threshold, _ int) types.Threshold { return toThreshold(t) }), nil
}

// DeleteThreshold either soft deletes, keeping the row for alerts that
// reference it, or removes the row. Removing a referenced row is refused.
// Both paths run in one transaction with the threshold row locked.
func (s *store) DeleteThreshold(ctx context.Context, thresholdID uint, permanently bool) error {
	return s.WithinTransaction(ctx, func(tx Store) error {
		db := tx.(*store).db.WithContext(ctx)

		_, err := tx.GetThreshold(ctx, WithID(thresholdID), WithRowLock())
		if err != nil {
			return err
		}

		if !permanently {
			err = db.Model(&Threshold{}).Where("id = ?", thresholdID).Update("active", false).Error
			if err != nil {
				return storageError(ctx, err, "could not deactivate threshold")
			}

			err = db.Delete(&Threshold{}, thresholdID).Error
			if err != nil {
				return storageError(ctx, err, "could not delete threshold")
			}

			return nil
		}

		var references int64
		err = db.Model(&Alert{}).Where("threshold_id = ?", thresholdID).Count(&references).Error
		if err != nil {
			return storageError(ctx, err, "could not count alerts for threshold")
		}
		if references > 0 {
			return fmt.Errorf("%w: threshold %d is referenced by %d alert(s)", types.ErrReferentialIntegrity, thresholdID, references)
		}

		err = db.Unscoped().Delete(&Threshold{}, thresholdID).Error
		if err != nil {
			return storageError(ctx, err, "could not delete threshold")
		}

		return nil
	})
}
