package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonwraymond/opsplug/errorhandler"
)

func TestStripNullChars(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{
			name:        "nested values",
			contentType: "application/json",
			body:        `{"name":"a\u0000b","tags":["x\u0000",1],"nested":{"k":"\u0000v"}}`,
			want:        `{"name":"ab","nested":{"k":"v"},"tags":["x",1]}` + "\n",
		},
		{
			name:        "keys are kept",
			contentType: "application/json; charset=utf-8",
			body:        `{"a\u0000":"b"}`,
			want:        `{"a\u0000":"b"}` + "\n",
		},
		{
			name:        "no null chars is untouched",
			contentType: "application/json",
			body:        `{"b":1,  "a":2}`,
			want:        `{"b":1,  "a":2}`,
		},
		{
			name:        "invalid json passes through",
			contentType: "application/json",
			body:        `{"a":"\u0000"`,
			want:        `{"a":"\u0000"`,
		},
		{
			name:        "other content types untouched",
			contentType: "text/plain",
			body:        `"\u0000"`,
			want:        `"\u0000"`,
		},
		{
			name:        "vendor json",
			contentType: "application/vnd.api+json",
			body:        `["\u0000<tag>"]`,
			want:        `["<tag>"]` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := StripNullChars(0, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				got = string(b)
				if r.ContentLength != int64(len(b)) {
					t.Errorf("ContentLength = %d, body has %d bytes", r.ContentLength, len(b))
				}
			}))

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripNullChars_RejectsOversizedBody(t *testing.T) {
	called := false
	h := StripNullChars(16, errorhandler.New(errorhandler.Config{}))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("a", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Error("next handler must not run for an oversized body")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	var body errorhandler.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	if body.ErrorCode != errorhandler.CodePayloadTooLarge {
		t.Errorf("errorCode = %q, want %q", body.ErrorCode, errorhandler.CodePayloadTooLarge)
	}

	// Bodies within the limit and non-JSON bodies are unaffected.
	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"b"}`))
	small.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), small)
	if !called {
		t.Error("next handler should run for a body within the limit")
	}
}
