package store

import "errors"

var (
	// ErrAccountExists is returned when creating an account whose username is taken.
	ErrAccountExists = errors.New("account already exists")
)
