package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/providers/upstream"
)

const MockID = "mock"

const mockSize = 512

// MockOptions configures the offline generator.
type MockOptions struct {
	Delay    time.Duration `mapstructure:"delay"`
	ImageURL string        `mapstructure:"image_url"`
}

// Mock renders a deterministic placeholder instead of calling a backend.
type Mock struct {
	delay    time.Duration
	imageURL string
}

func NewMock(opts MockOptions) *Mock {
	return &Mock{delay: opts.Delay, imageURL: strings.TrimSpace(opts.ImageURL)}
}

func (m *Mock) Name() string { return MockID }

// Generate waits for the configured delay, then returns either the fixed
// image_url or an inline PNG seeded by the prompt and source bytes.
func (m *Mock) Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.ProviderResult{}, upstream.MapTransportError(MockID, ctx.Err())
		}
	}
	seed := deterministicSeed(prompt, src.Name, src.Data)
	if m.imageURL != "" {
		return domain.ResultFromReference(m.imageURL, MockID, map[string]any{"seed": seed})
	}
	data := renderSyntheticImage(mockSize, mockSize, seed)
	if data == nil {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "render placeholder").WithProvider(MockID)
	}
	return domain.ProviderResult{
		InlineData: base64.StdEncoding.EncodeToString(data),
		MIMEType:   "image/png",
		Provider:   MockID,
		Metadata:   map[string]any{"seed": seed},
	}, nil
}

func deterministicSeed(parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		switch v := p.(type) {
		case []byte:
			h.Write(v)
		default:
			fmt.Fprint(h, v)
		}
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{colorFromSeed(seed, 0)}, stdimage.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	accent := colorFromSeed(seed, 1)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := stdimage.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &stdimage.Uniform{accent}, stdimage.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}
