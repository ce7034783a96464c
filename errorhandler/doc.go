// Package errorhandler turns handler errors into JSON responses.
//
// Errors that carry a public shape (PublicError, ValidationError) are
// rendered as-is. Everything else becomes a 500 with a generic body, is
// logged with the request id and is sent to the configured Reporter.
//
// Handlers opt in by returning errors through Handler.Wrap; panics are
// caught by Handler.Recover.
package errorhandler
