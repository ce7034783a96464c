// Package auth provides bearer token helpers for HTTP services.
//
// Tokens signs and verifies HMAC JWTs and exposes the decoded claims to
// handlers through the request context. StaticTokenMiddleware guards
// internal endpoints with a single shared secret.
//
// Every rejection is an *errorhandler.PublicError answered with 401.
package auth
