package generation

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/mojiQAQ/petsphoto/internal/domain"
)

const (
	MinUploadBytes     = 1024
	MinImageDimension  = 128
	DefaultUploadLimit = 10 << 20
)

var (
	ErrUploadTooLarge   = fmt.Errorf("%w: file too large", domain.ErrInvalidUpload)
	ErrUploadTooSmall   = fmt.Errorf("%w: file too small, possibly corrupted", domain.ErrInvalidUpload)
	ErrUnsupportedType  = fmt.Errorf("%w: only JPG, PNG and WEBP are supported", domain.ErrInvalidUpload)
	ErrImageTooSmall    = fmt.Errorf("%w: image must be at least %dx%d", domain.ErrInvalidUpload, MinImageDimension, MinImageDimension)
	ErrUndecodableImage = fmt.Errorf("%w: image cannot be decoded", domain.ErrInvalidUpload)
)

var allowedUploads = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageInfo describes an accepted upload.
type ImageInfo struct {
	MIMEType  string
	Extension string
	Width     int
	Height    int
}

// InspectUpload checks size, sniffed type and pixel dimensions. The declared
// content type of the request is ignored.
func InspectUpload(data []byte, maxBytes int64) (ImageInfo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadLimit
	}
	if int64(len(data)) > maxBytes {
		return ImageInfo{}, ErrUploadTooLarge
	}
	if len(data) < MinUploadBytes {
		return ImageInfo{}, ErrUploadTooSmall
	}
	mt := mimetype.Detect(data)
	ext, ok := allowedUploads[mt.String()]
	if !ok {
		return ImageInfo{}, ErrUnsupportedType
	}
	cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, ErrUndecodableImage
	}
	if cfg.Width < MinImageDimension || cfg.Height < MinImageDimension {
		return ImageInfo{}, ErrImageTooSmall
	}
	return ImageInfo{MIMEType: mt.String(), Extension: ext, Width: cfg.Width, Height: cfg.Height}, nil
}
