package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-converter/internal/api/respond"
	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/model"
	imagerepo "github.com/aliskhannn/image-converter/internal/repository/image"
	imagesvc "github.com/aliskhannn/image-converter/internal/service/image"
)

// service defines the interface for image-related operations.
type service interface {
	Convert(ctx context.Context, req model.UploadRequest) (model.Conversion, error)
	Compress(ctx context.Context, req model.UploadRequest) (model.Conversion, error)
	Latest(ctx context.Context, dir, name string) (model.Conversion, error)
}

// Handler provides HTTP handlers for image-related endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service   service
	maxUpload int64
}

// NewHandler creates a new Handler with the given service. Request bodies
// larger than maxUpload bytes are rejected.
func NewHandler(s service, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{service: s, maxUpload: maxUpload}
}

// Convert handles POST /convert: any supported upload, HEIF included, is
// converted to the requested format (JPEG by default).
func (h *Handler) Convert(c *ginext.Context) {
	h.handle(c, imagesvc.RouteConvert, h.service.Convert)
}

// Compress handles POST /compress: a JPEG, PNG or WebP upload is
// re-encoded, keeping its format unless another one is requested.
func (h *Handler) Compress(c *ginext.Context) {
	h.handle(c, imagesvc.RouteCompress, h.service.Compress)
}

func (h *Handler) handle(
	c *ginext.Context,
	route string,
	run func(context.Context, model.UploadRequest) (model.Conversion, error),
) {
	req, err := h.parseUpload(c)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("route", route).Msg("invalid upload")
		respond.Fail(c, StatusFor(err), err)
		return
	}

	zlog.Logger.Info().
		Str("route", route).
		Str("filename", req.Filename).
		Int("size", len(req.Data)).
		Str("path", req.Path).
		Bool("thumbnail", req.Thumbnails).
		Msg("upload received")

	conv, err := run(c.Request.Context(), req)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			zlog.Logger.Error().Err(err).Str("route", route).Msg("failed to convert the image")
			respond.Fail(c, status, errors.New("failed to convert the image"))
			return
		}

		zlog.Logger.Warn().Err(err).Str("route", route).Msg("conversion rejected")
		respond.Fail(c, status, err)
		return
	}

	zlog.Logger.Info().Str("route", route).Str("image", conv.ImageName).Msg("image converted")
	respond.ImageName(c, conv.ImageName)
}

// Latest handles GET /images/latest?path=&name= and returns the newest
// conversion record of a logical name.
func (h *Handler) Latest(c *ginext.Context) {
	conv, err := h.service.Latest(c.Request.Context(), c.Query("path"), c.Query("name"))
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			zlog.Logger.Error().Err(err).Msg("failed to get latest conversion")
			respond.Fail(c, status, errors.New("failed to get latest conversion"))
			return
		}

		respond.Fail(c, status, err)
		return
	}

	respond.OK(c, conv)
}

// parseUpload reads the multipart form into an UploadRequest.
func (h *Handler) parseUpload(c *ginext.Context) (model.UploadRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	// Parse the multipart form with a 10MB max memory limit.
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadRequest{}, err
		}
		return model.UploadRequest{}, fmt.Errorf("parse multipart form: %v: %w", err, imagesvc.ErrMissingField)
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		return model.UploadRequest{}, fmt.Errorf("image: %w", imagesvc.ErrMissingField)
	}
	defer file.Close()

	if header.Filename == "" {
		return model.UploadRequest{}, fmt.Errorf("image: no selected file: %w", imagesvc.ErrMissingField)
	}

	dir, ok := c.GetPostForm("path")
	if !ok {
		return model.UploadRequest{}, fmt.Errorf("path: %w", imagesvc.ErrMissingField)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return model.UploadRequest{}, fmt.Errorf("read upload: %w", err)
	}

	thumbnails, _ := strconv.ParseBool(c.PostForm("thumbnail"))

	return model.UploadRequest{
		Filename:   header.Filename,
		Data:       data,
		Path:       dir,
		Thumbnails: thumbnails,
		Format:     c.PostForm("format"),
	}, nil
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, imagesvc.ErrMissingField), errors.Is(err, imagesvc.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, codec.ErrCorruptData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imagesvc.ErrHistoryDisabled), errors.Is(err, imagerepo.ErrConversionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
