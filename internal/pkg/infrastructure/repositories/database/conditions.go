package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConditionFunc func(*Condition) *Condition

type Condition struct {
	ID          uint
	ThresholdID uint
	SubmittedBy string
	Name        string

	Active   *bool
	Resolved *bool

	IncludeDeleted bool
	ForUpdate      bool

	offset *int
	limit  *int
}

func newCondition(conditions ...ConditionFunc) *Condition {
	c := &Condition{}
	for _, f := range conditions {
		f(c)
	}
	return c
}

func WithID(id uint) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ID = id
		return c
	}
}

func WithThresholdID(id uint) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ThresholdID = id
		return c
	}
}

// WithSubmittedBy scopes values, and alerts through their values, to a principal.
func WithSubmittedBy(principalID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.SubmittedBy = principalID
		return c
	}
}

func WithName(name string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Name = name
		return c
	}
}

func WithActive(active bool) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Active = &active
		return c
	}
}

func WithResolved(resolved bool) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Resolved = &resolved
		return c
	}
}

func WithDeleted() ConditionFunc {
	return func(c *Condition) *Condition {
		c.IncludeDeleted = true
		return c
	}
}

// WithRowLock takes a row level write lock on dialects that support it.
func WithRowLock() ConditionFunc {
	return func(c *Condition) *Condition {
		c.ForUpdate = true
		return c
	}
}

func WithOffset(offset int) ConditionFunc {
	return func(c *Condition) *Condition {
		if offset > 0 {
			c.offset = &offset
		}
		return c
	}
}

func WithLimit(limit int) ConditionFunc {
	return func(c *Condition) *Condition {
		if limit > 0 {
			c.limit = &limit
		}
		return c
	}
}

// DefaultPageSize applies when an offset is requested without a limit.
const DefaultPageSize int = 1000

func (c Condition) paginate(query *gorm.DB) *gorm.DB {
	if c.offset != nil {
		query = query.Offset(*c.offset)
		if c.limit == nil {
			query = query.Limit(DefaultPageSize)
		}
	}
	if c.limit != nil {
		query = query.Limit(*c.limit)
	}
	return query
}

func (c Condition) lock(query *gorm.DB) *gorm.DB {
	if c.ForUpdate && query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}
