package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

type captureTransport struct {
	status     int
	response   string
	lastBody   []byte
	lastHeader http.Header
	lastPath   string
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastHeader = req.Header.Clone()
	c.lastPath = req.URL.Path
	if req.Body != nil {
		c.lastBody, _ = io.ReadAll(req.Body)
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(c.response)),
		Request:    req,
	}, nil
}

func newClient(t *testing.T, transport *captureTransport) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "sk-or-test",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGenerateRequestShape(t *testing.T) {
	transport := &captureTransport{response: `{"choices":[{"message":{"content":"here you go","images":[{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBORw0KGgo="}}]}}]}`}
	client := newClient(t, transport)

	res, err := client.Generate(context.Background(), "watercolor painting", domain.SourceImage{MIMEType: "image/png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.IsInline() || res.MIMEType != "image/png" || res.InlineData != "iVBORw0KGgo=" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if transport.lastPath != "/api/v1/chat/completions" {
		t.Fatalf("path = %q", transport.lastPath)
	}
	if got := transport.lastHeader.Get("Authorization"); got != "Bearer sk-or-test" {
		t.Fatalf("authorization = %q", got)
	}
	if transport.lastHeader.Get("HTTP-Referer") != defaultReferer || transport.lastHeader.Get("X-Title") != defaultTitle {
		t.Fatalf("attribution headers = %v", transport.lastHeader)
	}

	var sent chatRequest
	if err := json.Unmarshal(transport.lastBody, &sent); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if sent.Model != defaultModel || len(sent.Messages) != 1 || len(sent.Messages[0].Content) != 2 {
		t.Fatalf("unexpected request: %+v", sent)
	}
	parts := sent.Messages[0].Content
	if parts[0].ImageURL == nil || parts[0].ImageURL.URL != "data:image/png;base64,cG5n" {
		t.Fatalf("image part = %+v", parts[0])
	}
	if !strings.Contains(parts[1].Text, "in the following style: watercolor painting.") {
		t.Fatalf("text part = %q", parts[1].Text)
	}
}

func TestGenerateResponseLayouts(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantURL  string
		wantData string
		wantKind domain.FailureKind
	}{
		{
			name:     "content list inline data",
			response: `{"choices":[{"message":{"content":[{"type":"text","text":"ok"},{"type":"image","inline_data":{"mime_type":"image/webp","data":"UklGRg=="}}]}}]}`,
			wantData: "UklGRg==",
		},
		{
			name:     "content list image url",
			response: `{"choices":[{"message":{"content":[{"type":"image_url","image_url":{"url":"https://cdn.example.com/out.png"}}]}}]}`,
			wantURL:  "https://cdn.example.com/out.png",
		},
		{
			name:     "data uri string",
			response: `{"choices":[{"message":{"content":"data:image/jpeg;base64,/9j/4AAQ"}}]}`,
			wantData: "/9j/4AAQ",
		},
		{
			name:     "plain text",
			response: `{"choices":[{"message":{"content":"I cannot draw that."}}]}`,
			wantKind: domain.KindNoImageReturned,
		},
		{
			name:     "no choices",
			response: `{"choices":[]}`,
			wantKind: domain.KindNoImageReturned,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, &captureTransport{response: tc.response})
			res, err := client.Generate(context.Background(), "p", domain.SourceImage{Data: []byte("x")})
			if tc.wantKind != "" {
				if domain.KindOf(err) != tc.wantKind {
					t.Fatalf("kind = %q, want %q (%v)", domain.KindOf(err), tc.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if res.URL != tc.wantURL || res.InlineData != tc.wantData {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestGenerateMapsStatus(t *testing.T) {
	cases := map[int]domain.FailureKind{
		http.StatusUnauthorized:    domain.KindUnauthorized,
		http.StatusPaymentRequired: domain.KindUnauthorized,
		http.StatusTooManyRequests: domain.KindRateLimited,
		http.StatusBadRequest:      domain.KindInvalidConfiguration,
		http.StatusBadGateway:      domain.KindUpstreamUnavailable,
		http.StatusGatewayTimeout:  domain.KindTimeout,
	}
	for status, want := range cases {
		client := newClient(t, &captureTransport{status: status, response: `{"error":{"message":"nope","code":1}}`})
		_, err := client.Generate(context.Background(), "p", domain.SourceImage{Data: []byte("x")})
		if domain.KindOf(err) != want {
			t.Fatalf("status %d: kind = %q, want %q", status, domain.KindOf(err), want)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{APIKey: "  "})
	if domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("expected invalid_configuration, got %v", err)
	}
}
