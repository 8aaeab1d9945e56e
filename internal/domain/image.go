package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrMissingImage     = errors.New("domain: no image provided")
	ErrUnsupportedImage = errors.New("domain: unsupported image format")
	ErrCorruptImage     = errors.New("domain: corrupt image data")
)

var dataURLPattern = regexp.MustCompile(`^data:(image/(?:jpeg|jpg|png|webp|heic)|application/pdf);base64,`)

// Image is a decoded prescription upload.
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseImageDataURL decodes a `data:<mime>;base64,<payload>` upload.
func ParseImageDataURL(raw string) (Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Image{}, ErrMissingImage
	}
	m := dataURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return Image{}, ErrUnsupportedImage
	}
	mime := m[1]
	if mime == "image/jpg" {
		mime = "image/jpeg"
	}
	payload := raw[len(m[0]):]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if len(data) == 0 {
		return Image{}, ErrCorruptImage
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// DataURL re-encodes the image for providers that take inline URLs.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Extension returns the file extension used when archiving the image.
func (i Image) Extension() string {
	switch i.MIMEType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	case "application/pdf":
		return "pdf"
	default:
		return "jpg"
	}
}
