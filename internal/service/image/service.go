package image

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/model"
	"github.com/aliskhannn/image-converter/internal/naming"
	"github.com/aliskhannn/image-converter/internal/processor"
	"github.com/aliskhannn/image-converter/internal/transform"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidPath     = errors.New("invalid destination path")
	ErrHistoryDisabled = errors.New("conversion history is disabled")
)

// Route names used for metrics and logs.
const (
	RouteConvert  = "convert"
	RouteCompress = "compress"
)

// decoder defines the codec operations the service needs.
type decoder interface {
	Decode(data []byte, hint string) (codec.RawImage, error)
	CanEncode(f codec.Format) bool
}

// variantProcessor writes the variants of a decoded image.
type variantProcessor interface {
	Run(ctx context.Context, img codec.RawImage, job processor.Job) (processor.Result, error)
}

// repository defines the interface for conversion history.
type repository interface {
	SaveConversion(ctx context.Context, c model.Conversion) (uuid.UUID, error)
	LatestConversion(ctx context.Context, path, logical string) (model.Conversion, error)
}

// publisher defines the interface for announcing finished conversions
// (e.g., Kafka).
type publisher interface {
	Publish(ctx context.Context, c model.Conversion) error
}

// observer counts finished requests.
type observer interface {
	ObserveConversion(route, outcome string)
}

// Service provides the business logic behind /convert and /compress.
// It validates the upload, decodes it, fans out the variants and records
// the result.
type Service struct {
	codec     decoder
	processor variantProcessor

	repository repository
	publisher  publisher
	observer   observer
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithRepository stores every conversion as history.
func WithRepository(r repository) Option {
	return func(s *Service) { s.repository = r }
}

// WithPublisher announces every conversion.
func WithPublisher(p publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithObserver counts requests by route and outcome.
func WithObserver(o observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a new Service with the given codec and processor.
func NewService(c decoder, p variantProcessor, options ...Option) *Service {
	s := &Service{codec: c, processor: p, now: time.Now}
	for _, o := range options {
		o(s)
	}

	return s
}

// Convert turns any supported upload, HEIF included, into the requested
// output format. JPEG is used when none is requested.
func (s *Service) Convert(ctx context.Context, req model.UploadRequest) (c model.Conversion, err error) {
	defer func() { s.observe(RouteConvert, err) }()

	format, err := s.outputFormat(req.Format, codec.FormatJPEG)
	if err != nil {
		return model.Conversion{}, err
	}

	return s.run(ctx, req, format)
}

// Compress re-encodes a JPEG, PNG or WebP upload. The output keeps the
// upload's format unless another one is requested. HEIF is rejected.
func (s *Service) Compress(ctx context.Context, req model.UploadRequest) (c model.Conversion, err error) {
	defer func() { s.observe(RouteCompress, err) }()

	if codec.Sniff(req.Data) == codec.FormatHEIF || codec.ParseFormat(req.Filename) == codec.FormatHEIF {
		return model.Conversion{}, fmt.Errorf("compress %q: heif input: %w", req.Filename, codec.ErrUnsupportedFormat)
	}

	def := codec.FormatJPEG
	switch f := codec.ParseFormat(req.Filename); f {
	case codec.FormatPNG, codec.FormatWebP:
		if s.codec.CanEncode(f) {
			def = f
		}
	}

	format, err := s.outputFormat(req.Format, def)
	if err != nil {
		return model.Conversion{}, err
	}

	return s.run(ctx, req, format)
}

// Latest returns the most recent conversion of name under dir.
func (s *Service) Latest(ctx context.Context, dir, name string) (model.Conversion, error) {
	if s.repository == nil {
		return model.Conversion{}, ErrHistoryDisabled
	}

	if name == "" {
		return model.Conversion{}, fmt.Errorf("name: %w", ErrMissingField)
	}

	clean, err := CleanPath(dir)
	if err != nil {
		return model.Conversion{}, err
	}

	return s.repository.LatestConversion(ctx, clean, name)
}

func (s *Service) run(ctx context.Context, req model.UploadRequest, format codec.Format) (model.Conversion, error) {
	if req.Filename == "" || len(req.Data) == 0 {
		return model.Conversion{}, fmt.Errorf("image: %w", ErrMissingField)
	}

	logical := naming.LogicalName(req.Filename)
	if logical == "" {
		return model.Conversion{}, fmt.Errorf("image: empty file name: %w", ErrMissingField)
	}

	dir, err := CleanPath(req.Path)
	if err != nil {
		return model.Conversion{}, err
	}

	raw, err := s.codec.Decode(req.Data, req.Filename)
	if err != nil {
		return model.Conversion{}, err
	}

	if err := ctx.Err(); err != nil {
		return model.Conversion{}, err
	}

	raw = transform.CorrectOrientation(raw)

	res, err := s.processor.Run(ctx, raw, processor.Job{
		Dir:         dir,
		LogicalName: logical,
		Format:      format,
		Thumbnails:  req.Thumbnails,
	})
	if err != nil {
		return model.Conversion{}, err
	}

	conv := model.Conversion{
		ID:          uuid.New(),
		LogicalName: logical,
		ImageName:   res.Primary.Name,
		Path:        dir,
		Format:      string(format),
		CreatedAt:   s.now().UTC(),
	}
	for _, v := range res.Thumbnails {
		conv.Thumbnails = append(conv.Thumbnails, path.Join(v.Class, v.Name))
	}

	s.record(ctx, &conv)

	return conv, nil
}

// record saves and publishes a finished conversion. The files are already
// written, so failures here are logged and do not fail the request.
func (s *Service) record(ctx context.Context, conv *model.Conversion) {
	if s.repository != nil {
		id, err := s.repository.SaveConversion(ctx, *conv)
		if err != nil {
			zlog.Logger.Error().Err(err).Str("image", conv.ImageName).Msg("failed to save conversion")
		} else {
			conv.ID = id
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *conv); err != nil {
			zlog.Logger.Error().Err(err).Str("image", conv.ImageName).Msg("failed to publish conversion")
		}
	}
}

// outputFormat resolves an explicitly requested format, falling back to def.
func (s *Service) outputFormat(requested string, def codec.Format) (codec.Format, error) {
	if strings.TrimSpace(requested) == "" {
		return def, nil
	}

	f := codec.ParseFormat(requested)
	switch f {
	case codec.FormatJPEG, codec.FormatPNG, codec.FormatWebP:
	default:
		return codec.FormatUnknown, fmt.Errorf("output format %q: %w", requested, codec.ErrUnsupportedFormat)
	}

	if !s.codec.CanEncode(f) {
		return codec.FormatUnknown, fmt.Errorf("output format %q: %w", requested, codec.ErrUnsupportedFormat)
	}

	return f, nil
}

func (s *Service) observe(route string, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveConversion(route, Outcome(err))
}

// Outcome classifies a request result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidPath):
		return "invalid"
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, codec.ErrCorruptData):
		return "corrupt"
	default:
		return "error"
	}
}

// CleanPath normalizes a destination path relative to the images base
// directory. Leading slashes are dropped; ".." segments are rejected.
// The base directory itself is "".
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path %q: %w", p, ErrInvalidPath)
		}
	}

	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	return clean, nil
}
