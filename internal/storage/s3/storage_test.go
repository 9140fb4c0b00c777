package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"/albums/2024", "photo_1.jpeg", "albums/2024/photo_1.jpeg"},
		{"albums/2024/", "photo_1.jpeg", "albums/2024/photo_1.jpeg"},
		{"", "photo_1.jpeg", "photo_1.jpeg"},
		{"/", "photo_1.jpeg", "photo_1.jpeg"},
		{"../../x", "a_1.png", "x/a_1.png"},
		{"trip/100x100", "../b_1.webp", "trip/100x100/b_1.webp"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectName(tt.dir, tt.name), tt.dir+" "+tt.name)
	}
}

func TestDirPrefix(t *testing.T) {
	assert.Equal(t, "", dirPrefix(""))
	assert.Equal(t, "trip/", dirPrefix("/trip"))
	assert.Equal(t, "trip/300x200/", dirPrefix("trip/300x200"))
}
