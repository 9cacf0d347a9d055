package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertRepository interface {
	AddAlerts(ctx context.Context, alerts []types.Alert) ([]types.Alert, error)
	GetAlert(ctx context.Context, conditions ...ConditionFunc) (types.Alert, error)
	QueryAlerts(ctx context.Context, conditions ...ConditionFunc) ([]types.AlertDetails, error)
	ResolveAlert(ctx context.Context, alertID uint, resolvedBy string, resolvedAt time.Time) (types.Alert, bool, error)
}

func (c Condition) alerts(db *gorm.DB) *gorm.DB {
	query := db

	if c.ID != 0 {
		query = query.Where("id = ?", c.ID)
	}
	if c.ThresholdID != 0 {
		query = query.Where("threshold_id = ?", c.ThresholdID)
	}
	if c.Resolved != nil {
		query = query.Where("resolved = ?", *c.Resolved)
	}
	if c.SubmittedBy != "" {
		submitted := db.Model(&Value{}).Select("id").Where("submitted_by = ?", c.SubmittedBy)
		query = query.Where("value_id IN (?)", submitted)
	}

	return c.paginate(query)
}

func (s *store) AddAlerts(ctx context.Context, alerts []types.Alert) ([]types.Alert, error) {
	if len(alerts) == 0 {
		return []types.Alert{}, nil
	}

	rows := lo.Map(alerts, func(a types.Alert, _ int) Alert {
		row := fromAlert(a)
		row.ID = 0
		return row
	})

	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error
	if err != nil {
		return nil, storageError(ctx, err, "could not add alerts")
	}

	return lo.Map(rows, func(a Alert, _ int) types.Alert { return toAlert(a) }), nil
}

func (s *store) GetAlert(ctx context.Context, conditions ...ConditionFunc) (types.Alert, error) {
	c := newCondition(conditions...)
	row := Alert{}

	err := c.alerts(s.db.WithContext(ctx)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Alert{}, fmt.Errorf("%w: alert %d", types.ErrNotFound, c.ID)
		}
		return types.Alert{}, storageError(ctx, err, "could not fetch alert")
	}

	return toAlert(row), nil
}

// QueryAlerts joins every alert with its value and threshold, including
// thresholds that have been soft deleted since the alert was generated.
func (s *store) QueryAlerts(ctx context.Context, conditions ...ConditionFunc) ([]types.AlertDetails, error) {
	c := newCondition(conditions...)
	rows := []Alert{}

	err := c.alerts(s.db.WithContext(ctx)).
		Preload("Value").
		Preload("Threshold", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("generated_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(ctx, err, "could not query alerts")
	}

	return lo.Map(rows, func(a Alert, _ int) types.AlertDetails { return toAlertDetails(a) }), nil
}

// ResolveAlert marks an alert as resolved. The returned flag reports whether
// this call changed the state, resolving an already resolved alert is a no-op.
func (s *store) ResolveAlert(ctx context.Context, alertID uint, resolvedBy string, resolvedAt time.Time) (types.Alert, bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ? AND resolved = ?", alertID, false).
		Updates(map[string]any{
			"resolved":    true,
			"resolved_at": resolvedAt,
			"resolved_by": resolvedBy,
		})
	if result.Error != nil {
		return types.Alert{}, false, storageError(ctx, result.Error, "could not resolve alert")
	}

	alert, err := s.GetAlert(ctx, WithID(alertID))
	if err != nil {
		return types.Alert{}, false, err
	}

	return alert, result.RowsAffected > 0, nil
}
