package database

import (
	"github.com/diwise/threshold-alerts/pkg/types"
)

func toThreshold(t Threshold) types.Threshold {
	return types.Threshold{
		ID:        t.ID,
		Name:      t.Name,
		MinValue:  t.MinValue,
		MaxValue:  t.MaxValue,
		IsActive:  t.Active,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
		Deleted:   t.DeletedAt.Valid,
	}
}

func fromThreshold(t types.Threshold) Threshold {
	return Threshold{
		ID:       t.ID,
		Name:     t.Name,
		MinValue: t.MinValue,
		MaxValue: t.MaxValue,
		Active:   t.IsActive,
	}
}

func toValue(v Value) types.Value {
	return types.Value{
		ID:              v.ID,
		Value:           v.Value,
		SubmittedBy:     v.SubmittedBy,
		SubmittedByName: v.SubmittedByName,
		SubmittedAt:     v.SubmittedAt.UTC(),
	}
}

func fromValue(v types.Value) Value {
	return Value{
		ID:              v.ID,
		Value:           v.Value,
		SubmittedBy:     v.SubmittedBy,
		SubmittedByName: v.SubmittedByName,
		SubmittedAt:     v.SubmittedAt.UTC(),
	}
}

func toAlert(a Alert) types.Alert {
	alert := types.Alert{
		ID:            a.ID,
		AlertType:     types.AlertType(a.AlertType),
		AlertMessage:  a.Message,
		ValueID:       a.ValueID,
		ThresholdID:   a.ThresholdID,
		ThresholdName: a.ThresholdName,
		Bound:         a.Bound,
		IsResolved:    a.Resolved,
		ResolvedBy:    a.ResolvedBy,
		GeneratedAt:   a.GeneratedAt.UTC(),
	}

	if a.ResolvedAt != nil {
		resolvedAt := a.ResolvedAt.UTC()
		alert.ResolvedAt = &resolvedAt
	}

	return alert
}

func fromAlert(a types.Alert) Alert {
	return Alert{
		ID:            a.ID,
		AlertType:     string(a.AlertType),
		Message:       a.AlertMessage,
		ValueID:       a.ValueID,
		ThresholdID:   a.ThresholdID,
		ThresholdName: a.ThresholdName,
		Bound:         a.Bound,
		Resolved:      a.IsResolved,
		ResolvedAt:    a.ResolvedAt,
		ResolvedBy:    a.ResolvedBy,
		GeneratedAt:   a.GeneratedAt.UTC(),
	}
}

// toAlertDetails expects Value and Threshold to be preloaded. A threshold that
// has been removed permanently is represented by the label kept on the alert.
func toAlertDetails(a Alert) types.AlertDetails {
	details := types.AlertDetails{
		Alert: toAlert(a),
		Value: toValue(a.Value),
	}

	if a.Threshold.ID != 0 {
		details.Threshold = toThreshold(a.Threshold)
	} else {
		details.Threshold = types.Threshold{
			ID:      a.ThresholdID,
			Name:    a.ThresholdName,
			Deleted: true,
		}
	}

	return details
}
