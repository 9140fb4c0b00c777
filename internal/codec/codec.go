// Package codec decodes uploaded image containers into packed pixel buffers
// and encodes those buffers back into JPEG, PNG or WebP.
//
// JPEG and PNG are handled by imaging, while WebP, GIF and BMP input goes
// through golang.org/x/image. HEIF decoding and WebP encoding need cgo
// libraries, so they live in subpackages that register themselves on a
// Codec at startup.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptData       = errors.New("corrupt image data")
	ErrInvalidQuality    = errors.New("quality must be between 0 and 100")
)

// Mode describes the color channels carried by a RawImage.
type Mode string

const (
	ModeRGB  Mode = "RGB"
	ModeRGBA Mode = "RGBA"
)

// RawImage is a decoded image held as a tightly packed NRGBA buffer.
// Pix.Stride is always 4*Width and Pix.Rect starts at the origin.
type RawImage struct {
	Pix         *image.NRGBA
	Width       int
	Height      int
	Mode        Mode
	Orientation int // EXIF orientation, 1..8
}

// DecodeFunc decodes a whole container. exif is the raw EXIF block when the
// container carries one; it may be nil.
type DecodeFunc func(data []byte) (img image.Image, exif []byte, err error)

// EncodeFunc writes img in a single target format.
type EncodeFunc func(w io.Writer, img image.Image, quality int) error

// Codec dispatches decode and encode calls by Format.
// Registration is not synchronized and must finish before the first request.
type Codec struct {
	decoders map[Format]DecodeFunc
	encoders map[Format]EncodeFunc
}

// New returns a Codec with the pure-Go formats registered.
func New() *Codec {
	c := &Codec{
		decoders: make(map[Format]DecodeFunc),
		encoders: make(map[Format]EncodeFunc),
	}

	c.RegisterDecoder(FormatJPEG, decodeJPEG)
	for _, f := range []Format{FormatPNG, FormatWebP, FormatGIF, FormatBMP} {
		c.RegisterDecoder(f, decodeStd)
	}

	c.RegisterEncoder(FormatJPEG, encodeJPEG)
	c.RegisterEncoder(FormatPNG, encodePNG)

	return c
}

// RegisterDecoder sets the decoder used for f, replacing any previous one.
func (c *Codec) RegisterDecoder(f Format, fn DecodeFunc) {
	c.decoders[f] = fn
}

// RegisterEncoder sets the encoder used for f, replacing any previous one.
func (c *Codec) RegisterEncoder(f Format, fn EncodeFunc) {
	c.encoders[f] = fn
}

// CanEncode reports whether an encoder is registered for f.
func (c *Codec) CanEncode(f Format) bool {
	_, ok := c.encoders[f]
	return ok
}

// Decode sniffs the container, decodes it and packs the pixels.
//
// The hint (usually the uploaded filename) is consulted only when the
// content itself is not recognized. A failure in that case is reported as
// ErrUnsupportedFormat rather than ErrCorruptData, because the container
// was never identified.
func (c *Codec) Decode(data []byte, hint string) (RawImage, error) {
	format, sniffed := Sniff(data), true
	if format == FormatUnknown {
		format, sniffed = ParseFormat(hint), false
	}

	dec, ok := c.decoders[format]
	if !ok {
		return RawImage{}, fmt.Errorf("decode %q: %w", hint, ErrUnsupportedFormat)
	}

	img, exifData, err := dec(data)
	if err != nil {
		if !sniffed {
			return RawImage{}, fmt.Errorf("decode %s: %v: %w", format, err, ErrUnsupportedFormat)
		}
		return RawImage{}, fmt.Errorf("decode %s: %v: %w", format, err, ErrCorruptData)
	}

	raw, err := Pack(img)
	if err != nil {
		return RawImage{}, fmt.Errorf("decode %s: %w", format, err)
	}
	raw.Orientation = orientation(exifData)

	return raw, nil
}

// Encode writes raw in the target format. PNG is lossless and ignores
// quality.
func (c *Codec) Encode(raw RawImage, f Format, quality int) ([]byte, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("encode %s: %w", f, ErrInvalidQuality)
	}

	enc, ok := c.encoders[f]
	if !ok {
		return nil, fmt.Errorf("encode %q: %w", f, ErrUnsupportedFormat)
	}

	if raw.Pix == nil {
		return nil, fmt.Errorf("encode %s: empty pixel buffer: %w", f, ErrCorruptData)
	}

	var buf bytes.Buffer
	if err := enc(&buf, raw.Pix, quality); err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}

	return buf.Bytes(), nil
}

// Pack copies img into a tightly strided NRGBA buffer anchored at the
// origin. Decoders may hand back padded rows or offset rectangles; every
// transform downstream assumes packed rows.
func Pack(img image.Image) (RawImage, error) {
	if img == nil {
		return RawImage{}, fmt.Errorf("nil image: %w", ErrCorruptData)
	}

	b := img.Bounds()
	if b.Empty() {
		return RawImage{}, fmt.Errorf("empty image %dx%d: %w", b.Dx(), b.Dy(), ErrCorruptData)
	}

	// imaging scans rows on worker goroutines, so a short buffer has to be
	// caught before it is touched.
	if err := checkBuffer(img); err != nil {
		return RawImage{}, err
	}

	w, h := b.Dx(), b.Dy()

	// Sub-images share a longer backing array and are copied out too.
	pix, ok := img.(*image.NRGBA)
	if !ok || pix.Rect.Min != (image.Point{}) || pix.Stride != 4*w || len(pix.Pix) != pix.Stride*h {
		pix = imaging.Clone(img)
	}

	if pix.Stride != 4*w || len(pix.Pix) != pix.Stride*h {
		return RawImage{}, fmt.Errorf("stride %d for %dx%d (%d bytes): %w", pix.Stride, w, h, len(pix.Pix), ErrCorruptData)
	}

	mode := ModeRGB
	if !pix.Opaque() {
		mode = ModeRGBA
	}

	return RawImage{Pix: pix, Width: w, Height: h, Mode: mode, Orientation: 1}, nil
}

// orientation extracts the EXIF orientation tag, defaulting to 1.
func orientation(data []byte) int {
	if len(data) == 0 {
		return 1
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}

	return v
}

func decodeJPEG(data []byte) (image.Image, []byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	// goexif locates the APP1 segment inside the JPEG stream itself.
	return img, data, nil
}

func decodeStd(data []byte) (image.Image, []byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	return img, nil, err
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func encodePNG(w io.Writer, img image.Image, _ int) error {
	return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
}
