package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrEmptyDocument is returned for a document with no content.
	ErrEmptyDocument = errors.New("config: empty document")
)
