package evaluator

import (
	"testing"
	"time"

	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/matryer/is"
)

func TestValueBelowMinimumGeneratesMinBreach(t *testing.T) {
	is := is.New(t)

	alerts := Evaluate(value(5), []types.Threshold{temp()})

	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].AlertType, types.MinBreach)
	is.Equal(alerts[0].ThresholdID, uint(1))
	is.Equal(alerts[0].ValueID, uint(7))
	is.Equal(alerts[0].Bound, 10.0)
	is.Equal(alerts[0].AlertMessage, `value 5 is below the minimum 10 of threshold "Temp"`)
}

func TestValueAboveMaximumGeneratesMaxBreach(t *testing.T) {
	is := is.New(t)

	alerts := Evaluate(value(95), []types.Threshold{temp()})

	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].AlertType, types.MaxBreach)
	is.Equal(alerts[0].Bound, 90.0)
	is.Equal(alerts[0].ThresholdName, "Temp")
}

func TestValueWithinBoundsGeneratesNothing(t *testing.T) {
	is := is.New(t)

	is.Equal(len(Evaluate(value(50), []types.Threshold{temp()})), 0)
	is.Equal(len(Evaluate(value(10), []types.Threshold{temp()})), 0)
	is.Equal(len(Evaluate(value(90), []types.Threshold{temp()})), 0)
}

func TestInactiveThresholdIsIgnored(t *testing.T) {
	is := is.New(t)

	inactive := temp()
	inactive.ID = 2
	inactive.IsActive = false

	alerts := Evaluate(value(5), []types.Threshold{temp(), inactive})

	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].ThresholdID, uint(1))
}

func TestDeletedThresholdIsIgnored(t *testing.T) {
	is := is.New(t)

	deleted := temp()
	deleted.Deleted = true

	is.Equal(len(Evaluate(value(5), []types.Threshold{deleted})), 0)
}

func TestThresholdWithoutBoundsNeverBreaches(t *testing.T) {
	is := is.New(t)

	unbounded := types.Threshold{ID: 3, Name: "anything", IsActive: true}

	is.Equal(len(Evaluate(value(-1e9), []types.Threshold{unbounded})), 0)
}

func TestInvertedBoundsYieldBothBreaches(t *testing.T) {
	is := is.New(t)

	inverted := types.Threshold{ID: 4, Name: "odd", MinValue: f(90), MaxValue: f(10), IsActive: true}

	alerts := Evaluate(value(50), []types.Threshold{inverted})

	is.Equal(len(alerts), 2)
	is.Equal(alerts[0].AlertType, types.MinBreach)
	is.Equal(alerts[1].AlertType, types.MaxBreach)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	is := is.New(t)

	thresholds := []types.Threshold{temp(), {ID: 5, Name: "Low", MinValue: f(20), IsActive: true}}

	first := Evaluate(value(5), thresholds)
	second := Evaluate(value(5), thresholds)

	is.Equal(first, second)
	is.Equal(len(first), 2)
}

func temp() types.Threshold {
	return types.Threshold{ID: 1, Name: "Temp", MinValue: f(10), MaxValue: f(90), IsActive: true}
}

func value(v float64) types.Value {
	return types.Value{
		ID:          7,
		Value:       v,
		SubmittedBy: "op-1",
		SubmittedAt: time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func f(v float64) *float64 {
	return &v
}
