package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrConstraint      = errors.New("constraint violation")
	ErrStorageConflict = errors.New("storage key already exists")
)
