package types

import (
	"encoding/json"
	"time"
)

type AlertCreated struct {
	Alert     Alert     `json:"alert"`
	Value     float64   `json:"value"`
	Principal string    `json:"principal"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlertCreated) ContentType() string {
	return "application/json"
}
func (a *AlertCreated) TopicName() string {
	return "alerts.alertCreated"
}
func (a *AlertCreated) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}

type AlertResolved struct {
	ID         uint      `json:"id"`
	ResolvedBy string    `json:"resolvedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

func (a *AlertResolved) ContentType() string {
	return "application/json"
}
func (a *AlertResolved) TopicName() string {
	return "alerts.alertResolved"
}
func (a *AlertResolved) Body() []byte {
	b, _ := json.Marshal(a)
	return b
}
