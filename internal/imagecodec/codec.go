// Package imagecodec turns request payloads into rasters and rasters into sidecar uploads.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for an empty payload.
var ErrEmptyImage = errors.New("empty image data")

// StripDataURI drops everything up to and including the first comma, which
// removes prefixes such as "data:image/jpeg;base64,".
func StripDataURI(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeBase64 decodes a base64 image, with or without a data-URI prefix.
func DecodeBase64(s string) (image.Image, error) {
	payload := strings.TrimSpace(StripDataURI(s))
	if payload == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("decoding base64: %w", err)
		}
		data = raw
	}
	return Decode(data)
}

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("failed to decode image: zero-sized %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

// Upload is a JPEG rendition of a raster, plus the factor that maps its
// coordinates back to the original raster.
type Upload struct {
	Data  []byte
	Scale float64 // original pixels per uploaded pixel
}

// EncodeForUpload re-encodes img as JPEG, downscaling so neither edge exceeds maxSize.
func EncodeForUpload(img image.Image, maxSize, quality int) (*Upload, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	src := img
	scale := 1.0
	if maxSize > 0 && (width > maxSize || height > maxSize) {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
			scale = float64(width) / float64(newWidth)
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
			scale = float64(height) / float64(newHeight)
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		src = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Upload{Data: buf.Bytes(), Scale: scale}, nil
}
