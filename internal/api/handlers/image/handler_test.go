package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/model"
	imagerepo "github.com/aliskhannn/image-converter/internal/repository/image"
	imagesvc "github.com/aliskhannn/image-converter/internal/service/image"
)

type fakeService struct {
	got  model.UploadRequest
	conv model.Conversion
	err  error
}

func (s *fakeService) Convert(_ context.Context, req model.UploadRequest) (model.Conversion, error) {
	s.got = req
	return s.conv, s.err
}

func (s *fakeService) Compress(_ context.Context, req model.UploadRequest) (model.Conversion, error) {
	s.got = req
	return s.conv, s.err
}

func (s *fakeService) Latest(_ context.Context, dir, name string) (model.Conversion, error) {
	if s.err != nil {
		return model.Conversion{}, s.err
	}
	c := s.conv
	c.Path, c.LogicalName = dir, name
	return c, nil
}

func newEngine(s *fakeService, maxUpload int64) *ginext.Engine {
	h := NewHandler(s, maxUpload)
	r := ginext.New()
	r.POST("/convert", h.Convert)
	r.POST("/compress", h.Compress)
	r.GET("/images/latest", h.Latest)
	return r
}

type upload struct {
	filename string
	data     []byte
	fields   map[string]string
}

func multipartRequest(t *testing.T, target string, u upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if u.data != nil {
		part, err := w.CreateFormFile("image", u.filename)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	for k, v := range u.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestConvertRespondsWithImageName(t *testing.T) {
	s := &fakeService{conv: model.Conversion{ImageName: "photo_1700000000.jpeg"}}
	r := newEngine(s, 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/convert", upload{
		filename: "photo.HEIC",
		data:     []byte("heic bytes"),
		fields:   map[string]string{"path": "/albums/2024", "thumbnail": "true", "format": "webp"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"image_name": "photo_1700000000.jpeg"}, decodeBody(t, rec))

	assert.Equal(t, "photo.HEIC", s.got.Filename)
	assert.Equal(t, []byte("heic bytes"), s.got.Data)
	assert.Equal(t, "/albums/2024", s.got.Path)
	assert.True(t, s.got.Thumbnails)
	assert.Equal(t, "webp", s.got.Format)
}

func TestCompressThumbnailDefaultsToFalse(t *testing.T) {
	s := &fakeService{conv: model.Conversion{ImageName: "icon_1.png"}}
	r := newEngine(s, 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/compress", upload{
		filename: "icon.png",
		data:     []byte("png"),
		fields:   map[string]string{"path": ""},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.got.Thumbnails)
	assert.Equal(t, "", s.got.Path)
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name string
		u    upload
	}{
		{"missing image", upload{fields: map[string]string{"path": "x"}}},
		{"missing path", upload{filename: "a.png", data: []byte("png")}},
		{"empty filename", upload{filename: "", data: []byte("png"), fields: map[string]string{"path": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&fakeService{}, 0)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, "/convert", tt.u))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	r := newEngine(&fakeService{}, 1024)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/convert", upload{
		filename: "big.png",
		data:     bytes.Repeat([]byte{1}, 4096),
		fields:   map[string]string{"path": "x"},
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "request body too large")
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", codec.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{fmt.Errorf("x: %w", codec.ErrCorruptData), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", imagesvc.ErrInvalidPath), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			r := newEngine(&fakeService{err: tt.err}, 0)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, "/convert", upload{
				filename: "a.png",
				data:     []byte("png"),
				fields:   map[string]string{"path": "x"},
			}))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	r := newEngine(&fakeService{err: errors.New("open /srv/images/secret: permission denied")}, 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/convert", upload{filename: "a.png", data: []byte("png"), fields: map[string]string{"path": "x"}}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/srv/images")
}

func TestLatest(t *testing.T) {
	r := newEngine(&fakeService{conv: model.Conversion{ImageName: "beach_5.jpeg"}}, 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/latest?path=trip&name=beach", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Conversion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "beach_5.jpeg", got.ImageName)
	assert.Equal(t, "trip", got.Path)
	assert.Equal(t, "beach", got.LogicalName)

	r = newEngine(&fakeService{err: imagerepo.ErrConversionNotFound}, 0)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/latest?path=trip&name=beach", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusBadRequest, StatusFor(imagesvc.ErrMissingField))
	assert.Equal(t, http.StatusNotFound, StatusFor(imagesvc.ErrHistoryDisabled))
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(&http.MaxBytesError{Limit: 1}))
}
