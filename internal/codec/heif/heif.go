// Package heif adds HEIF/HEIC decoding to a codec.Codec.
package heif

import (
	"bytes"
	"image"

	"github.com/jdeng/goheif"

	"github.com/aliskhannn/image-converter/internal/codec"
)

// libde265 planes live in C memory that goheif frees before Decode
// returns, so they must be copied into Go memory.
func init() {
	goheif.SafeEncoding = true
}

// Register installs the HEIF decoder on c.
func Register(c *codec.Codec) {
	c.RegisterDecoder(codec.FormatHEIF, Decode)
}

// Decode decodes the primary image of a HEIF container. The EXIF block is
// returned alongside when present; its absence is not an error.
func Decode(data []byte) (image.Image, []byte, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	exif, err := goheif.ExtractExif(bytes.NewReader(data))
	if err != nil {
		return img, nil, nil
	}

	return img, exif, nil
}
