package respond

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

// Image is the body of a successful conversion.
type Image struct {
	ImageName string `json:"image_name"`
}

// Error represents a standard structure for error responses.
type Error struct {
	Error string `json:"error"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
// It uses the Gin context to encode the data into JSON format.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK sends a 200 OK JSON response with data as is.
func OK(c *ginext.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// ImageName sends a 200 OK response naming the primary variant.
func ImageName(c *ginext.Context, name string) {
	OK(c, Image{ImageName: name})
}

// Fail sends an error JSON response with the specified HTTP status code.
// The error message is wrapped in an Error struct.
func Fail(c *ginext.Context, status int, err error) {
	JSON(c, status, Error{Error: err.Error()})
}
