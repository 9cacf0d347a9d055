package types

import (
	"bytes"
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
)

// Principal is an already authenticated caller. The service never verifies
// credentials itself, it trusts whatever the authentication layer resolved.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Threshold struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	MinValue  *float64  `json:"minValue"`
	MaxValue  *float64  `json:"maxValue"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   bool      `json:"deleted,omitempty"`
}

type Value struct {
	ID              uint      `json:"id"`
	Value           float64   `json:"value"`
	SubmittedBy     string    `json:"submittedBy"`
	SubmittedByName string    `json:"submittedByName,omitempty"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

type AlertType string

const (
	MinBreach AlertType = "MIN_BREACH"
	MaxBreach AlertType = "MAX_BREACH"
)

type Alert struct {
	ID            uint       `json:"id"`
	AlertType     AlertType  `json:"alertType"`
	AlertMessage  string     `json:"alertMessage"`
	ValueID       uint       `json:"valueId"`
	ThresholdID   uint       `json:"thresholdId"`
	ThresholdName string     `json:"thresholdName"`
	Bound         float64    `json:"bound"`
	IsResolved    bool       `json:"isResolved"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy    string     `json:"resolvedBy,omitempty"`
	GeneratedAt   time.Time  `json:"generatedAt"`
}

// AlertDetails is an alert joined with the value that triggered it and the
// threshold it breached. Threshold is marked as deleted rather than omitted
// when the rule has since been removed.
type AlertDetails struct {
	Alert
	Value     Value     `json:"value"`
	Threshold Threshold `json:"threshold"`
}

type Submission struct {
	Value           Value   `json:"value"`
	AlertsGenerated int     `json:"alertsGenerated"`
	Alerts          []Alert `json:"alerts"`
}

type CreateThresholdRequest struct {
	Name     string   `json:"name"`
	MinValue *float64 `json:"minValue"`
	MaxValue *float64 `json:"maxValue"`
}

// UpdateThresholdRequest is a partial update. Bounds distinguish between an
// absent key (keep the current bound) and an explicit null (clear the bound).
type UpdateThresholdRequest struct {
	Name     *string       `json:"name,omitempty"`
	MinValue OptionalFloat `json:"minValue"`
	MaxValue OptionalFloat `json:"maxValue"`
	IsActive *bool         `json:"isActive,omitempty"`
}

type SubmitValueRequest struct {
	Value *float64 `json:"value"`
}

type OptionalFloat struct {
	Present bool
	Value   *float64
}

func Set(f float64) OptionalFloat {
	return OptionalFloat{Present: true, Value: &f}
}

func Clear() OptionalFloat {
	return OptionalFloat{Present: true}
}

func (o *OptionalFloat) UnmarshalJSON(b []byte) error {
	o.Present = true

	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	o.Value = &f

	return nil
}

// MarshalJSON only emits the fields that are part of the update so that an
// absent bound is not mistaken for a cleared one.
func (r UpdateThresholdRequest) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}

	if r.Name != nil {
		fields["name"] = *r.Name
	}
	if r.MinValue.Present {
		fields["minValue"] = r.MinValue.Value
	}
	if r.MaxValue.Present {
		fields["maxValue"] = r.MaxValue.Value
	}
	if r.IsActive != nil {
		fields["isActive"] = *r.IsActive
	}

	return json.Marshal(fields)
}
