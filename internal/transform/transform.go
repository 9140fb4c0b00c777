// Package transform applies orientation, resizing and color-mode changes to
// decoded images. Every operation returns a new RawImage and leaves its
// input untouched.
package transform

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/aliskhannn/image-converter/internal/codec"
)

// Mode selects how thumbnails are scaled.
type Mode string

const (
	// ModeFit scales into a bounding box, keeping the aspect ratio.
	ModeFit Mode = "fit"
	// ModeExact stretches to the requested size.
	ModeExact Mode = "exact"
)

// ParseMode validates a configured resize policy.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFit, ModeExact:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown resize mode %q", s)
	}
}

// CorrectOrientation rotates and flips the pixels so they match the EXIF
// orientation, then resets Orientation to 1. Calling it again is a no-op.
func CorrectOrientation(img codec.RawImage) codec.RawImage {
	var out *image.NRGBA

	switch img.Orientation {
	case 2:
		out = imaging.FlipH(img.Pix)
	case 3:
		out = imaging.Rotate180(img.Pix)
	case 4:
		out = imaging.FlipV(img.Pix)
	case 5:
		out = imaging.Transpose(img.Pix)
	case 6:
		out = imaging.Rotate270(img.Pix)
	case 7:
		out = imaging.Transverse(img.Pix)
	case 8:
		out = imaging.Rotate90(img.Pix)
	default:
		img.Orientation = 1
		return img
	}

	upright := withPixels(img, out)
	upright.Orientation = 1

	return upright
}

// FitWithin downscales img so it fits inside maxWidth x maxHeight, keeping
// the aspect ratio. Images that already fit are returned unchanged.
func FitWithin(img codec.RawImage, maxWidth, maxHeight int) codec.RawImage {
	if maxWidth <= 0 || maxHeight <= 0 {
		return img
	}
	if img.Width <= maxWidth && img.Height <= maxHeight {
		return img
	}

	return withPixels(img, imaging.Fit(img.Pix, maxWidth, maxHeight, imaging.Lanczos))
}

// ExactResize scales img to exactly width x height.
func ExactResize(img codec.RawImage, width, height int) codec.RawImage {
	if width <= 0 || height <= 0 {
		return img
	}
	if img.Width == width && img.Height == height {
		return img
	}

	return withPixels(img, imaging.Resize(img.Pix, width, height, imaging.Lanczos))
}

// Resize applies the given thumbnail policy.
func Resize(img codec.RawImage, width, height int, mode Mode) codec.RawImage {
	if mode == ModeExact {
		return ExactResize(img, width, height)
	}
	return FitWithin(img, width, height)
}

// ToOpaque composites img onto a solid background given as a hex color
// ("#fff", "ffffff"). Opaque images are returned unchanged.
func ToOpaque(img codec.RawImage, background string) codec.RawImage {
	if img.Mode != codec.ModeRGBA {
		return img
	}

	dc := gg.NewContext(img.Width, img.Height)
	dc.SetHexColor(background)
	dc.Clear()
	dc.DrawImage(img.Pix, 0, 0)

	out := withPixels(img, imaging.Clone(dc.Image()))
	out.Mode = codec.ModeRGB

	return out
}

func withPixels(src codec.RawImage, pix *image.NRGBA) codec.RawImage {
	b := pix.Bounds()
	return codec.RawImage{
		Pix:         pix,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Mode:        src.Mode,
		Orientation: src.Orientation,
	}
}
