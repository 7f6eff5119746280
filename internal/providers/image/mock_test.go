package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"testing"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

func TestMockRendersDeterministicPNG(t *testing.T) {
	m := NewMock(MockOptions{})
	src := domain.SourceImage{Name: "cat.jpg", MIMEType: "image/jpeg", Data: []byte("cat")}

	first, err := m.Generate(context.Background(), "cartoon style", src)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if !first.IsInline() || first.MIMEType != "image/png" || first.Provider != MockID {
		t.Fatalf("unexpected result: %+v", first)
	}
	raw, err := base64.StdEncoding.DecodeString(first.InlineData)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != mockSize || b.Dy() != mockSize {
		t.Fatalf("bounds = %v", b)
	}

	second, _ := m.Generate(context.Background(), "cartoon style", src)
	if second.InlineData != first.InlineData {
		t.Fatalf("expected identical output for identical input")
	}
	other, _ := m.Generate(context.Background(), "oil painting", src)
	if other.Metadata["seed"] == first.Metadata["seed"] {
		t.Fatalf("expected a different seed for a different prompt")
	}
}

func TestMockImageURL(t *testing.T) {
	m := NewMock(MockOptions{ImageURL: "https://picsum.photos/1024/1024"})
	res, err := m.Generate(context.Background(), "p", domain.SourceImage{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://picsum.photos/1024/1024" || res.IsInline() {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestColorFromSeed(t *testing.T) {
	c := colorFromSeed("ff8000aabbcc", 0)
	if c.R != 0xff || c.G != 0x80 || c.B != 0x00 || c.A != 255 {
		t.Fatalf("unexpected color %+v", c)
	}
	c = colorFromSeed("ff8000aabbcc", 1)
	if c.R != 0xaa || c.G != 0xbb || c.B != 0xcc {
		t.Fatalf("unexpected shifted color %+v", c)
	}
	if got := colorFromSeed("", 0); got.R != 0 || got.A != 255 {
		t.Fatalf("unexpected fallback color %+v", got)
	}
}
