package types

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrReferentialIntegrity = errors.New("referenced by existing alerts")
	ErrPersistence          = errors.New("could not access storage")
)
