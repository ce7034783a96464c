package errorhandler

import (
	"errors"
	"net/http"
	"testing"
)

func TestPublicError(t *testing.T) {
	cause := errors.New("signature mismatch")
	err := AuthFailed()
	err.Err = cause

	if !errors.Is(err, cause) {
		t.Error("PublicError should unwrap to its cause")
	}
	if got, want := err.Error(), "AUTH_FAILED: Authentication failed: signature mismatch"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withDetails := err.WithDetails(map[string]any{"a": 1})
	if err.Details != nil {
		t.Error("WithDetails mutated the receiver")
	}
	if withDetails.Details["a"] != 1 {
		t.Errorf("Details = %v", withDetails.Details)
	}
}

func TestNewPublicError_DefaultStatus(t *testing.T) {
	if got := NewPublicError(0, "X", "x").StatusCode; got != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", got)
	}
}

func TestEmptyToken(t *testing.T) {
	err := EmptyToken()
	if err.StatusCode != http.StatusUnauthorized || err.Code != CodeEmptyToken || err.Message != "Empty token" {
		t.Errorf("EmptyToken() = %+v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	tests := []struct {
		err  *ValidationError
		want string
	}{
		{NewValidationError(), "invalid params"},
		{NewValidationError(Issue{Path: "a", Message: "required"}, Issue{Path: "b", Message: "x"}), "invalid params: a: required"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestInternalError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &InternalError{Code: "DB", Message: "query failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("InternalError should unwrap to its cause")
	}
	if got, want := err.Error(), "DB: query failed: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
