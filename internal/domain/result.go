package domain

import (
	"strings"
)

// ProviderResult is the uniform envelope returned by every provider. Exactly
// one of URL or InlineData is set.
type ProviderResult struct {
	URL        string         `json:"url,omitempty"`
	InlineData string         `json:"-"`
	MIMEType   string         `json:"mime_type,omitempty"`
	Provider   string         `json:"provider"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsInline reports whether the artifact travels as base64 data.
func (r ProviderResult) IsInline() bool {
	return r.InlineData != ""
}

// Validate rejects empty or ambiguous envelopes.
func (r ProviderResult) Validate() error {
	hasURL := strings.TrimSpace(r.URL) != ""
	hasData := r.InlineData != ""
	switch {
	case hasURL && hasData:
		return NewGenerationError(KindNoImageReturned, "result carries both a url and inline data").WithProvider(r.Provider)
	case !hasURL && !hasData:
		return NewGenerationError(KindNoImageReturned, "result carries no image").WithProvider(r.Provider)
	case hasData && strings.TrimSpace(r.MIMEType) == "":
		return NewGenerationError(KindNoImageReturned, "inline image without mime type").WithProvider(r.Provider)
	}
	return nil
}

// ResultFromReference builds an envelope from a reference returned by a
// backend. data: URIs become inline data, http(s) URLs are kept as-is and
// anything else is rejected.
func ResultFromReference(ref, provider string, metadata map[string]any) (ProviderResult, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "data:"):
		mime, data, ok := ParseDataURI(ref)
		if !ok {
			return ProviderResult{}, NewGenerationError(KindNoImageReturned, "malformed data uri").WithProvider(provider)
		}
		return ProviderResult{InlineData: data, MIMEType: mime, Provider: provider, Metadata: metadata}, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ProviderResult{URL: ref, Provider: provider, Metadata: metadata}, nil
	case ref == "":
		return ProviderResult{}, NewGenerationError(KindNoImageReturned, "empty image reference").WithProvider(provider)
	default:
		return ProviderResult{}, NewGenerationError(KindNoImageReturned, "unsupported image reference").WithProvider(provider)
	}
}

// ParseDataURI splits "data:<mime>;base64,<payload>" into its parts.
func ParseDataURI(uri string) (mime, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found || payload == "" {
		return "", "", false
	}
	params := strings.Split(header, ";")
	base64Encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			base64Encoded = true
		}
	}
	if !base64Encoded {
		return "", "", false
	}
	mime = strings.TrimSpace(params[0])
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, payload, true
}
