// Package naming derives logical and variant file names for converted
// images.
//
// A logical name is the stem of the uploaded filename and groups every
// version of "the same" image. A variant name adds the upload time in
// seconds and the output extension: "{logical}_{seconds}.{ext}".
package naming

import (
	"fmt"
	"strings"

	"github.com/aliskhannn/image-converter/internal/codec"
)

// ParseBaseNameAndExtension splits a filename into its stem and extension.
//
// Directory components are dropped first. Only the segment after the last
// dot is treated as the extension, so "a.b.png" yields ("a.b", "png").
// Names without a dot, or whose only dot is the leading one (".env"),
// have no extension.
func ParseBaseNameAndExtension(filename string) (base, ext string) {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name, ""
	}

	return name[:dot], name[dot+1:]
}

// LogicalName returns the grouping key for an uploaded filename.
func LogicalName(filename string) string {
	base, _ := ParseBaseNameAndExtension(filename)
	return base
}

// VariantName builds "{logical}_{seconds}.{ext}".
func VariantName(logical string, seconds int64, ext string) string {
	return fmt.Sprintf("%s_%d.%s", logical, seconds, ext)
}

// PrefixOf recovers the logical name from a stored variant file name by
// stripping the extension and the trailing "_<seconds>" stamp. A name with
// no stamp is its own prefix.
func PrefixOf(filename string) string {
	base, _ := ParseBaseNameAndExtension(filename)

	i := strings.LastIndexByte(base, '_')
	if i <= 0 || !isDigits(base[i+1:]) {
		return base
	}

	return base[:i]
}

// Extension returns the file extension written for f, without the dot.
func Extension(f codec.Format) string {
	switch f {
	case codec.FormatJPEG:
		return "jpeg"
	case codec.FormatWebP:
		return "webp"
	case codec.FormatPNG:
		return "png"
	default:
		return string(f)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
