package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server, maxAttempts int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:       "r8_test",
		BaseURL:      srv.URL,
		Model:        "owner/model:abc123",
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGeneratePollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token r8_test" {
			t.Errorf("authorization = %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload["version"] != "abc123" {
				t.Errorf("version = %v", payload["version"])
			}
			input := payload["input"].(map[string]any)
			if !strings.HasPrefix(input["image"].(string), "data:image/jpeg;base64,") {
				t.Errorf("image = %v", input["image"])
			}
			if input["strength"] != 0.4 || input["num_inference_steps"] != float64(30) {
				t.Errorf("input = %v", input)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/pred-1":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id":"pred-1","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"pred-1","status":"succeeded","output":["https://replicate.delivery/out.png"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv, 10).Generate(context.Background(), "pixel art", domain.SourceImage{MIMEType: "image/jpeg", Data: []byte("jpg")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://replicate.delivery/out.png" || res.IsInline() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Metadata["prediction_id"] != "pred-1" {
		t.Fatalf("metadata = %v", res.Metadata)
	}
	if polls.Load() != 3 {
		t.Fatalf("polls = %d, want 3", polls.Load())
	}
}

func TestGenerateOutcomes(t *testing.T) {
	cases := []struct {
		name  string
		final string
		want  domain.FailureKind
		check func(t *testing.T, res domain.ProviderResult)
	}{
		{name: "failed", final: `{"id":"p","status":"failed","error":"NSFW content detected"}`, want: domain.KindUpstreamUnavailable},
		{name: "canceled", final: `{"id":"p","status":"canceled"}`, want: domain.KindUpstreamUnavailable},
		{name: "empty output", final: `{"id":"p","status":"succeeded","output":[]}`, want: domain.KindNoImageReturned},
		{name: "never settles", final: `{"id":"p","status":"processing"}`, want: domain.KindTimeout},
		{name: "data uri", final: `{"id":"p","status":"succeeded","output":"data:image/webp;base64,UklGRg=="}`, check: func(t *testing.T, res domain.ProviderResult) {
			if !res.IsInline() || res.MIMEType != "image/webp" || res.InlineData != "UklGRg==" {
				t.Fatalf("unexpected inline result: %+v", res)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					_, _ = w.Write([]byte(`{"id":"p","status":"starting"}`))
					return
				}
				_, _ = w.Write([]byte(tc.final))
			}))
			defer srv.Close()

			res, err := newTestClient(t, srv, 3).Generate(context.Background(), "p", domain.SourceImage{Data: []byte("x")})
			if tc.check != nil {
				if err != nil {
					t.Fatalf("generate: %v", err)
				}
				tc.check(t, res)
				return
			}
			if domain.KindOf(err) != tc.want {
				t.Fatalf("kind = %q, want %q (%v)", domain.KindOf(err), tc.want, err)
			}
		})
	}
}

func TestGenerateCreateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"Invalid version or not permitted"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Generate(context.Background(), "p", domain.SourceImage{Data: []byte("x")})
	if domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("kind = %q (%v)", domain.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "Invalid version") {
		t.Fatalf("message lost: %v", err)
	}
}

func TestVersion(t *testing.T) {
	c, _ := NewClient(Options{APIKey: "k"})
	if c.Version() != "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b" {
		t.Fatalf("version = %q", c.Version())
	}
	c, _ = NewClient(Options{APIKey: "k", Model: "plainhash"})
	if c.Version() != "plainhash" {
		t.Fatalf("version = %q", c.Version())
	}
}
