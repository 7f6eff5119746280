package image

import (
	"context"
	"testing"
	"time"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra/google"
	"github.com/mojiQAQ/petsphoto/internal/providers/replicate"
	"github.com/mojiQAQ/petsphoto/internal/providers/stability"
)

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("dall-e", nil, Deps{})
	if domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("expected invalid_configuration, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	for _, id := range []string{"google_ai", "stability_ai", "replicate", "openrouter"} {
		t.Run(id, func(t *testing.T) {
			gen, err := New(id, map[string]string{}, Deps{Tokens: google.NewRegistry(nil)})
			if gen != nil {
				t.Fatalf("expected no generator, got %T", gen)
			}
			if domain.KindOf(err) != domain.KindInvalidConfiguration {
				t.Fatalf("expected invalid_configuration, got %v", err)
			}
		})
	}
}

func TestNewBuildsEachProvider(t *testing.T) {
	cases := map[string]map[string]string{
		"mock":         nil,
		" Mock ":       {"delay": "0s"},
		"google_ai":    {"project_id": "pets", "api_key": "AIza-test"},
		"stability_ai": {"api_key": "sk-test", "cfg_scale": "8.5", "steps": "40"},
		"replicate":    {"api_key": "r8_test", "poll_interval": "500ms"},
		"openrouter":   {"api_key": "sk-or-test", "title": "Pets"},
	}
	for id, settings := range cases {
		gen, err := New(id, settings, Deps{})
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if gen.Name() == "" {
			t.Fatalf("%s: empty name", id)
		}
	}
}

func TestNewRejectsBadServiceAccount(t *testing.T) {
	_, err := New("google_ai", map[string]string{
		"project_id":       "pets",
		"credentials_json": `{"type":"authorized_user"}`,
	}, Deps{Tokens: google.NewRegistry(nil)})
	if domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("expected invalid_configuration, got %v", err)
	}
}

func TestDecodeSettingsWeakTypes(t *testing.T) {
	var st stability.Options
	err := decodeSettings("stability_ai", map[string]string{
		"api_key":        "k",
		"cfg_scale":      "6.5",
		"steps":          "25",
		"image_strength": "0.5",
		"timeout":        "45s",
		"unrelated":      "ignored",
	}, &st)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CFGScale != 6.5 || st.Steps != 25 || st.ImageStrength != 0.5 || st.Timeout != 45*time.Second {
		t.Fatalf("unexpected options: %+v", st)
	}

	var rp replicate.Options
	if err := decodeSettings("replicate", map[string]string{"max_attempts": "3", "poll_interval": "250ms"}, &rp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rp.MaxAttempts != 3 || rp.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected options: %+v", rp)
	}

	err = decodeSettings("replicate", map[string]string{"max_attempts": "many"}, &rp)
	if domain.KindOf(err) != domain.KindInvalidConfiguration {
		t.Fatalf("expected invalid_configuration, got %v", err)
	}
}

func TestMockFromFactoryRespectsDelay(t *testing.T) {
	gen, err := New("mock", map[string]string{"delay": "1h"}, Deps{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, "cartoon", domain.SourceImage{Data: []byte("x")})
	if domain.KindOf(err) != domain.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}
