package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesAccessFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := RequestID(I18N("en", nil)(Logger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))))

	req := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("CF-IPCountry", "sg")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"method":     "POST",
		"path":       "/v1/generations",
		"status":     float64(201),
		"bytes":      float64(2),
		"request_id": "req-1",
		"country":    "SG",
		"level":      "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("%s = %v, want %v (entry %v)", k, entry[k], v, entry)
		}
	}
	if _, ok := entry["latency"]; !ok {
		t.Fatalf("latency missing: %v", entry)
	}
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", string(bytes.Repeat([]byte("x"), 100)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(seen) != 36 || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id = %q", seen)
	}
}
