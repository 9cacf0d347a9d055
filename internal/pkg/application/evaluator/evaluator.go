package evaluator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/diwise/threshold-alerts/pkg/types"
)

// Evaluate compares a submitted value against a snapshot of thresholds and
// returns one alert per breached bound. Inactive and deleted thresholds, as
// well as thresholds without bounds, never produce alerts. The returned alerts
// are not yet persisted and carry no identity.
func Evaluate(value types.Value, thresholds []types.Threshold) []types.Alert {
	alerts := []types.Alert{}

	for _, t := range thresholds {
		if !t.IsActive || t.Deleted {
			continue
		}

		if t.MinValue != nil && value.Value < *t.MinValue {
			alerts = append(alerts, newAlert(types.MinBreach, value, t, *t.MinValue))
		}

		if t.MaxValue != nil && value.Value > *t.MaxValue {
			alerts = append(alerts, newAlert(types.MaxBreach, value, t, *t.MaxValue))
		}
	}

	return alerts
}

func newAlert(alertType types.AlertType, value types.Value, t types.Threshold, bound float64) types.Alert {
	generatedAt := value.SubmittedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	return types.Alert{
		AlertType:     alertType,
		AlertMessage:  Message(alertType, t.Name, value.Value, bound),
		ValueID:       value.ID,
		ThresholdID:   t.ID,
		ThresholdName: t.Name,
		Bound:         bound,
		GeneratedAt:   generatedAt,
	}
}

func Message(alertType types.AlertType, thresholdName string, value, bound float64) string {
	v := strconv.FormatFloat(value, 'g', -1, 64)
	b := strconv.FormatFloat(bound, 'g', -1, 64)

	switch alertType {
	case types.MinBreach:
		return fmt.Sprintf("value %s is below the minimum %s of threshold %q", v, b, thresholdName)
	case types.MaxBreach:
		return fmt.Sprintf("value %s is above the maximum %s of threshold %q", v, b, thresholdName)
	}

	return fmt.Sprintf("value %s breached %s of threshold %q", v, b, thresholdName)
}
