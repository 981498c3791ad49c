// Package frame decodes uploaded image bytes and encodes raster images to
// JPEG buffers for the outgoing multipart stream.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Register the decoders accepted on the upload channel.
	_ "image/gif"
	_ "image/png"

	"github.com/c360/framestream/errors"
)

// DefaultQuality is the JPEG encoding quality used when none is configured.
const DefaultQuality = 80

// Codec converts between raw bytes and raster images.
type Codec struct {
	quality int
}

// NewCodec creates a codec with the given JPEG quality. Values outside 1-100
// fall back to DefaultQuality.
func NewCodec(quality int) *Codec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Codec{quality: quality}
}

// Quality returns the configured JPEG encoding quality.
func (c *Codec) Quality() int {
	return c.quality
}

// Decode parses uploaded bytes into a raster image. Malformed input yields
// an invalid-classified error; the caller decides session consequences.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed,
			"Codec", "Decode", "empty payload")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
			"Codec", "Decode", "decode image")
	}

	return img, nil
}

// EncodeJPEG encodes a raster image to a JPEG byte buffer. The buffer is
// always non-empty for a valid image.
func (c *Codec) EncodeJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Codec", "EncodeJPEG", "nil image")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeJPEG", "encode image")
	}

	return buf.Bytes(), nil
}
