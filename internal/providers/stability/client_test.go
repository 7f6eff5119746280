package stability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

func TestGenerateSendsMultipartAndReadsArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generation/sdxl-test/image-to-image" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("text_prompts[0][text]"); got != "watercolor painting" {
			t.Errorf("prompt = %q", got)
		}
		if got := r.FormValue("image_strength"); got != "0.5" {
			t.Errorf("image_strength = %q", got)
		}
		if got := r.FormValue("steps"); got != "30" {
			t.Errorf("steps = %q", got)
		}
		file, _, err := r.FormFile("init_image")
		if err != nil {
			t.Errorf("init_image: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "source-bytes" {
				t.Errorf("init_image bytes = %q", data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artifacts":[{"base64":"iVBORw0KGgo=","seed":42,"finishReason":"SUCCESS"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{
		APIKey:        "sk-test",
		BaseURL:       srv.URL,
		Model:         "sdxl-test",
		ImageStrength: 0.5,
		HTTPClient:    srv.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := client.Generate(context.Background(), "watercolor painting", domain.SourceImage{Name: "cat.png", MIMEType: "image/png", Data: []byte("source-bytes")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.InlineData != "iVBORw0KGgo=" || res.MIMEType != "image/png" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Metadata["seed"] != int64(42) || res.Metadata["finish_reason"] != "SUCCESS" {
		t.Fatalf("metadata = %v", res.Metadata)
	}
}

func TestGenerateMapsStatuses(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   domain.FailureKind
	}{
		{http.StatusPaymentRequired, `{"name":"insufficient_balance","message":"You lack sufficient balance"}`, domain.KindUnauthorized},
		{http.StatusTooManyRequests, `{"message":"slow down"}`, domain.KindRateLimited},
		{http.StatusBadRequest, `{"message":"invalid_prompts"}`, domain.KindInvalidConfiguration},
		{http.StatusInternalServerError, `oops`, domain.KindUpstreamUnavailable},
		{http.StatusOK, `{"artifacts":[]}`, domain.KindNoImageReturned},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		client, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		_, err = client.Generate(context.Background(), "p", domain.SourceImage{Data: []byte("x")})
		srv.Close()
		if domain.KindOf(err) != tc.want {
			t.Fatalf("status %d: kind = %q, want %q (%v)", tc.status, domain.KindOf(err), tc.want, err)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("expected invalid_configuration, got %v", err)
	}
}
