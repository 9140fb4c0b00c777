package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aliskhannn/image-converter/internal/codec"
)

func TestParseBaseNameAndExtension(t *testing.T) {
	tests := []struct {
		in, base, ext string
	}{
		{"photo.HEIC", "photo", "HEIC"},
		{"beach.jpg", "beach", "jpg"},
		{"a.b.png", "a.b", "png"},
		{"archive.tar.gz", "archive.tar", "gz"},
		{"README", "README", ""},
		{".env", ".env", ""},
		{"trailing.", "trailing", ""},
		{"dir/sub/photo.png", "photo", "png"},
		{`C:\Users\me\photo.jpeg`, "photo", "jpeg"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, ext := ParseBaseNameAndExtension(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestLogicalNameStripsSingleExtension(t *testing.T) {
	for _, f := range []string{"photo.HEIC", "beach.jpg", "my_photo.png", "IMG 0001.webp"} {
		base, ext := ParseBaseNameAndExtension(f)
		assert.Equal(t, f[:len(f)-len(ext)-1], LogicalName(f))
		assert.Equal(t, base, LogicalName(f))
	}

	assert.Equal(t, "a.b", LogicalName("a.b.png"))
}

func TestVariantName(t *testing.T) {
	assert.Equal(t, "photo_1700000000.jpeg", VariantName("photo", 1700000000, "jpeg"))
	assert.Equal(t, "a.b_5.webp", VariantName("a.b", 5, "webp"))
}

func TestPrefixOfInvertsVariantName(t *testing.T) {
	for _, logical := range []string{"photo", "a.b", "my_photo", "photo_2024", "x"} {
		name := VariantName(logical, 1712345678, "jpeg")
		assert.Equal(t, logical, PrefixOf(name), name)
	}
}

func TestPrefixOf(t *testing.T) {
	tests := map[string]string{
		"photo.jpeg":           "photo",
		"photo_abc.jpeg":       "photo_abc",
		"photo_.jpeg":          "photo_",
		"_123.jpeg":            "_123",
		".tmp-123456":          ".tmp-123456",
		"beach_1700000000.png": "beach",
	}

	for in, want := range tests {
		assert.Equal(t, want, PrefixOf(in), in)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpeg", Extension(codec.FormatJPEG))
	assert.Equal(t, "webp", Extension(codec.FormatWebP))
	assert.Equal(t, "png", Extension(codec.FormatPNG))
}
