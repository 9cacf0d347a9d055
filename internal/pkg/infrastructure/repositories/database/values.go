package database

import (
	"context"

	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ValueRepository interface {
	AddValue(ctx context.Context, v types.Value) (types.Value, error)
	QueryValues(ctx context.Context, conditions ...ConditionFunc) ([]types.Value, error)
}

func (c Condition) values(query *gorm.DB) *gorm.DB {
	if c.ID != 0 {
		query = query.Where("id = ?", c.ID)
	}
	if c.SubmittedBy != "" {
		query = query.Where("submitted_by = ?", c.SubmittedBy)
	}
	return c.paginate(query)
}

func (s *store) AddValue(ctx context.Context, v types.Value) (types.Value, error) {
	row := fromValue(v)
	row.ID = 0

	err := s.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		return types.Value{}, storageError(ctx, err, "could not add value")
	}

	return toValue(row), nil
}

// QueryValues returns the most recent submission first. Submissions sharing a
// timestamp are ordered by insertion, newest first.
func (s *store) QueryValues(ctx context.Context, conditions ...ConditionFunc) ([]types.Value, error) {
	c := newCondition(conditions...)
	rows := []Value{}

	err := c.values(s.db.WithContext(ctx)).
		Order("submitted_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(ctx, err, "could not query values")
	}

	return lo.Map(rows, func(v Value, _ int) types.Value { return toValue(v) }), nil
}
