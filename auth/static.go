package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/jonwraymond/opsplug/errorhandler"
	"github.com/jonwraymond/opsplug/observe"
)

// StaticTokenMiddleware admits requests carrying "Authorization: Bearer
// <token>" and answers everything else with 401 AUTH_FAILED through eh.
func StaticTokenMiddleware(token string, eh *errorhandler.Handler, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := BearerToken(r)
			if !ok {
				logger.Error(r.Context(), "Token not present")
				eh.Handle(w, r, withCause(ErrMissingCredentials))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logger.Error(r.Context(), "Invalid token")
				eh.Handle(w, r, withCause(ErrInvalidCredentials))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withCause(cause error) *errorhandler.PublicError {
	e := errorhandler.AuthFailed()
	e.Err = cause
	return e
}
