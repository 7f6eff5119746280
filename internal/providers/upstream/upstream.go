// Package upstream holds the HTTP plumbing shared by the image provider
// clients: status and transport error normalization plus JSON round trips.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

// MaxResponseBytes caps how much of a provider response body is read.
const MaxResponseBytes = 64 << 20

const maxErrorText = 300

// KindForStatus maps an upstream HTTP status to a failure kind.
func KindForStatus(status int) domain.FailureKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusPaymentRequired, status == http.StatusForbidden:
		return domain.KindUnauthorized
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return domain.KindTimeout
	case status >= 500:
		return domain.KindUpstreamUnavailable
	default:
		return domain.KindInvalidConfiguration
	}
}

// MapHTTPError builds the normalized error for a non-2xx response.
func MapHTTPError(provider string, status int, body []byte) *domain.GenerationError {
	msg := ErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.NewGenerationError(KindForStatus(status), "%s", msg).
		WithProvider(provider).
		WithHTTPStatus(status)
}

// MapTransportError classifies a failed round trip. Deadlines and network
// timeouts are timeouts; everything else means the upstream was unreachable.
func MapTransportError(provider string, err error) *domain.GenerationError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewGenerationError(domain.KindTimeout, "request timed out").
			WithProvider(provider).
			WithCause(err)
	}
	return domain.NewGenerationError(domain.KindUpstreamUnavailable, "request failed").
		WithProvider(provider).
		WithCause(err)
}

// ErrorMessage extracts a human-readable message from an error body. It
// understands the common {"error":{"message"}}, {"error":"..."},
// {"message"} and {"detail"} shapes and falls back to trimmed text.
func ErrorMessage(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if nested, ok := payload["error"].(map[string]any); ok {
			if msg, ok := nested["message"].(string); ok && msg != "" {
				return truncate(msg)
			}
		}
		for _, key := range []string{"error", "message", "detail", "name"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				return truncate(msg)
			}
		}
	}
	return truncate(string(body))
}

// Do executes req and decodes a 2xx JSON body into out. Failures come back as
// *domain.GenerationError.
func Do(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return MapTransportError(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return MapTransportError(provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return MapHTTPError(provider, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewGenerationError(domain.KindNoImageReturned, "malformed response body").
			WithProvider(provider).
			WithHTTPStatus(resp.StatusCode).
			WithCause(err)
	}
	return nil
}

// Truncate shortens s to at most n bytes for logs and stored error messages.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func truncate(s string) string {
	return Truncate(strings.TrimSpace(s), maxErrorText)
}
