// Package webp adds WebP encoding to a codec.Codec through libwebp.
package webp

import (
	"fmt"
	"image"
	"io"

	"github.com/kolesa-team/go-webp/encoder"
	kwebp "github.com/kolesa-team/go-webp/webp"

	"github.com/aliskhannn/image-converter/internal/codec"
)

// Register installs the WebP encoder on c.
func Register(c *codec.Codec) {
	c.RegisterEncoder(codec.FormatWebP, Encode)
}

// Encode writes img as lossy WebP. Quality 100 switches to lossless.
func Encode(w io.Writer, img image.Image, quality int) error {
	var (
		options *encoder.Options
		err     error
	)
	if quality == 100 {
		options, err = encoder.NewLosslessEncoderOptions(encoder.PresetDefault, 6)
	} else {
		options, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	}
	if err != nil {
		return fmt.Errorf("webp encoder options: %w", err)
	}

	return kwebp.Encode(w, img, options)
}
