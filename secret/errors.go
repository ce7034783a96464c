package secret

import "errors"

var (
	// ErrMissingEnv reports ${VAR} references to unset variables.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrUnknownProvider reports references to unregistered providers.
	ErrUnknownProvider = errors.New("secret: provider is not registered")

	// ErrEmptySecret reports an empty value from a strict resolver.
	ErrEmptySecret = errors.New("secret: provider returned an empty value")

	// ErrInvalidRef reports references that cannot be served.
	ErrInvalidRef = errors.New("secret: invalid reference")
)
