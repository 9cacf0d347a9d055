package database

import (
	"time"

	"gorm.io/gorm"
)

type Threshold struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Name     string `gorm:"not null"`
	MinValue *float64
	MaxValue *float64
	Active   bool `gorm:"index"`
}

type Value struct {
	ID uint `gorm:"primarykey"`

	Value           float64   `gorm:"not null"`
	SubmittedBy     string    `gorm:"index;not null"`
	SubmittedByName string
	SubmittedAt     time.Time `gorm:"index;not null"`
}

// TableName avoids the reserved word VALUES in both sqlite and postgres.
func (Value) TableName() string {
	return "submitted_values"
}

type Alert struct {
	ID uint `gorm:"primarykey"`

	AlertType string `gorm:"not null"`
	Message   string

	ValueID uint `gorm:"index;not null"`
	Value   Value

	ThresholdID   uint `gorm:"index;not null"`
	Threshold     Threshold
	ThresholdName string
	Bound         float64

	Resolved    bool `gorm:"index"`
	ResolvedAt  *time.Time
	ResolvedBy  string
	GeneratedAt time.Time `gorm:"index;not null"`
}
