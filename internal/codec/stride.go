package codec

import (
	"fmt"
	"image"
)

// checkBuffer verifies that the planes of the common in-memory image types
// are large enough for their rectangle and stride.
func checkBuffer(img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.NRGBA:
		return checkPlane("pix", len(m.Pix), m.Stride, 4*w, h)
	case *image.RGBA:
		return checkPlane("pix", len(m.Pix), m.Stride, 4*w, h)
	case *image.NRGBA64:
		return checkPlane("pix", len(m.Pix), m.Stride, 8*w, h)
	case *image.RGBA64:
		return checkPlane("pix", len(m.Pix), m.Stride, 8*w, h)
	case *image.Gray:
		return checkPlane("pix", len(m.Pix), m.Stride, w, h)
	case *image.Gray16:
		return checkPlane("pix", len(m.Pix), m.Stride, 2*w, h)
	case *image.YCbCr:
		if err := checkPlane("Y", len(m.Y), m.YStride, w, h); err != nil {
			return err
		}
		cw, ch := chromaSize(m.SubsampleRatio, b)
		if err := checkPlane("Cb", len(m.Cb), m.CStride, cw, ch); err != nil {
			return err
		}
		return checkPlane("Cr", len(m.Cr), m.CStride, cw, ch)
	}

	return nil
}

func checkPlane(name string, n, stride, rowBytes, rows int) error {
	if rows == 0 || rowBytes == 0 {
		return nil
	}
	if stride < rowBytes || n < stride*(rows-1)+rowBytes {
		return fmt.Errorf("%s plane: %d bytes, stride %d, want %d rows of %d: %w",
			name, n, stride, rows, rowBytes, ErrCorruptData)
	}
	return nil
}

func chromaSize(ratio image.YCbCrSubsampleRatio, r image.Rectangle) (w, h int) {
	w, h = r.Dx(), r.Dy()
	half := func(lo, hi int) int { return (hi+1)/2 - lo/2 }
	quarter := func(lo, hi int) int { return (hi+3)/4 - lo/4 }

	switch ratio {
	case image.YCbCrSubsampleRatio422:
		w = half(r.Min.X, r.Max.X)
	case image.YCbCrSubsampleRatio420:
		w, h = half(r.Min.X, r.Max.X), half(r.Min.Y, r.Max.Y)
	case image.YCbCrSubsampleRatio440:
		h = half(r.Min.Y, r.Max.Y)
	case image.YCbCrSubsampleRatio411:
		w = quarter(r.Min.X, r.Max.X)
	case image.YCbCrSubsampleRatio410:
		w, h = quarter(r.Min.X, r.Max.X), half(r.Min.Y, r.Max.Y)
	}

	return w, h
}
