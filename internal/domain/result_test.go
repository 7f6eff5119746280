package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestProviderResultValidate(t *testing.T) {
	cases := []struct {
		name    string
		result  ProviderResult
		wantErr bool
	}{
		{"url only", ProviderResult{URL: "https://cdn.example.com/a.png"}, false},
		{"inline only", ProviderResult{InlineData: "aGk=", MIMEType: "image/png"}, false},
		{"both", ProviderResult{URL: "https://cdn.example.com/a.png", InlineData: "aGk=", MIMEType: "image/png"}, true},
		{"neither", ProviderResult{}, true},
		{"inline without mime", ProviderResult{InlineData: "aGk="}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.result.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && KindOf(err) != KindNoImageReturned {
				t.Fatalf("kind = %q, want %q", KindOf(err), KindNoImageReturned)
			}
		})
	}
}

func TestResultFromReference(t *testing.T) {
	res, err := ResultFromReference("data:image/webp;base64,AAAA", "openrouter", nil)
	if err != nil {
		t.Fatalf("data uri: %v", err)
	}
	if !res.IsInline() || res.MIMEType != "image/webp" || res.InlineData != "AAAA" {
		t.Fatalf("unexpected inline result: %+v", res)
	}

	res, err = ResultFromReference(" https://replicate.delivery/out.png ", "replicate", map[string]any{"prediction_id": "p1"})
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if res.URL != "https://replicate.delivery/out.png" || res.IsInline() {
		t.Fatalf("unexpected url result: %+v", res)
	}
	if res.Metadata["prediction_id"] != "p1" {
		t.Fatalf("metadata not kept: %+v", res.Metadata)
	}

	for _, ref := range []string{"", "ftp://host/file", "data:image/png,notbase64", "data:image/png;base64,"} {
		if _, err := ResultFromReference(ref, "x", nil); KindOf(err) != KindNoImageReturned {
			t.Fatalf("ref %q: expected no_image_returned, got %v", ref, err)
		}
	}
}

func TestGenerationErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewGenerationError(KindUnauthorized, "invalid api key").
		WithProvider("stability_ai").
		WithHTTPStatus(401).
		WithCause(cause)
	msg := err.Error()
	for _, want := range []string{"stability_ai", "unauthorized", "invalid api key", "401", "refused"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	wrapped := errors.Join(errors.New("outer"), err)
	if KindOf(wrapped) != KindUnauthorized {
		t.Fatalf("KindOf through wrap = %q", KindOf(wrapped))
	}
}
