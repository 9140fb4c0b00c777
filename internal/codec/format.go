package codec

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format identifies an image container.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatHEIF    Format = "heif"
)

var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"image/jpeg", FormatJPEG},
	{"image/png", FormatPNG},
	{"image/webp", FormatWebP},
	{"image/gif", FormatGIF},
	{"image/bmp", FormatBMP},
	{"image/heic", FormatHEIF},
	{"image/heic-sequence", FormatHEIF},
	{"image/heif", FormatHEIF},
	{"image/heif-sequence", FormatHEIF},
}

// Sniff detects the container from its magic bytes.
func Sniff(data []byte) Format {
	m := mimetype.Detect(data)
	for _, mf := range mimeFormats {
		if m.Is(mf.mime) {
			return mf.format
		}
	}

	return FormatUnknown
}

// ParseFormat maps a format name, extension or filename to a Format.
// "jpg", ".JPG" and "photo.jpg" all yield FormatJPEG.
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}

	switch strings.TrimPrefix(s, ".") {
	case "jpeg", "jpg", "jpe":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "heic", "heif", "hif":
		return FormatHEIF
	default:
		return FormatUnknown
	}
}

// SupportsAlpha reports whether f can store transparency.
func SupportsAlpha(f Format) bool {
	switch f {
	case FormatPNG, FormatWebP, FormatGIF:
		return true
	default:
		return false
	}
}
