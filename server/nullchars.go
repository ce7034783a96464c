package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/jonwraymond/opsplug/errorhandler"
)

// StripNullChars returns middleware that removes NUL characters from every
// string value of a JSON request body. Keys are left alone. Bodies that are
// not valid JSON pass through untouched.
//
// At most maxBytes of a body are buffered; a larger body is rejected with
// 413 through errs. maxBytes <= 0 means 1 MiB.
func StripNullChars(maxBytes int64, errs *errorhandler.Handler) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || !isJSON(r.Header.Get("Content-Type")) {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			_ = r.Body.Close()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				rejectTooLarge(w, r, errs, tooLarge)
				return
			}
			if err != nil {
				r.Body = io.NopCloser(bytes.NewReader(raw))
				next.ServeHTTP(w, r)
				return
			}

			body := raw
			if bytes.Contains(raw, []byte(`\u0000`)) {
				if cleaned, ok := stripJSON(raw); ok {
					body = cleaned
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func rejectTooLarge(w http.ResponseWriter, r *http.Request, errs *errorhandler.Handler, cause *http.MaxBytesError) {
	perr := errorhandler.NewPublicError(http.StatusRequestEntityTooLarge, errorhandler.CodePayloadTooLarge, "Request body is too large")
	perr.Err = cause
	if errs == nil {
		http.Error(w, perr.Message, perr.StatusCode)
		return
	}
	errs.Handle(w, r, perr)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

func stripJSON(raw []byte) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(removeNullChars(v)); err != nil {
		return nil, false
	}
	return out.Bytes(), true
}

func removeNullChars(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "\x00", "")
	case []any:
		for i := range t {
			t[i] = removeNullChars(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = removeNullChars(val)
		}
		return t
	default:
		return v
	}
}
