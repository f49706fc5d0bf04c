package config

import "errors"

// Configuration errors.
var (
	// ErrInvalidAccessKey indicates a malformed access key.
	ErrInvalidAccessKey = errors.New("invalid access key")

	// ErrInvalidConfig indicates a configuration value outside its allowed range.
	ErrInvalidConfig = errors.New("invalid configuration")
)
