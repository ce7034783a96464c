package auth

import "errors"

// Sentinel errors. Rejections wrap them inside an errorhandler.PublicError.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidSignature   = errors.New("auth: invalid token signature")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")

	// Configuration errors
	ErrMissingSecret            = errors.New("auth: missing signing secret")
	ErrUnsupportedSigningMethod = errors.New("auth: unsupported signing method")
)
