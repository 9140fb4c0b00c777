package processor

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/naming"
	"github.com/aliskhannn/image-converter/internal/transform"
)

// fileStorage defines the interface for writing encoded variants
// (e.g., local FS, S3, MinIO).
type fileStorage interface {
	Save(ctx context.Context, dir, name string, data []byte) (string, error)
}

// encoder turns pixels into a container.
type encoder interface {
	Encode(img codec.RawImage, f codec.Format, quality int) ([]byte, error)
}

// cleaner removes superseded variants after a write.
type cleaner interface {
	Clean(ctx context.Context, dir, prefix, current string) (int, error)
}

// locker serializes runs for the same logical image.
type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// observer receives per-variant telemetry.
type observer interface {
	ObserveVariant(class, format string, size, removed int, d time.Duration, err error)
}

// Class is one thumbnail size class, written into its own subdirectory.
type Class struct {
	Dir     string // subdirectory under the primary directory, e.g. "100x100"
	Width   int
	Height  int
	Format  codec.Format
	Quality int
}

// Options configures the fan-out. It is fixed per deployment.
type Options struct {
	PrimaryWidth  int
	PrimaryHeight int
	Quality       int
	ThumbnailMode transform.Mode
	Background    string // hex color used when flattening alpha
	Classes       []Class
}

// Job is the per-request part of a run.
type Job struct {
	Dir         string       // destination relative to the storage root
	LogicalName string       // stem shared by every version of this image
	Format      codec.Format // primary output format
	Thumbnails  bool
}

// Variant is one written file.
type Variant struct {
	Class  string // "primary" or the class directory
	Dir    string
	Name   string
	Format codec.Format
	Width  int
	Height int
	Size   int
	Stored string // location reported by the storage backend
}

// Result lists the variants written by a run.
type Result struct {
	Primary    Variant
	Thumbnails []Variant
}

// Processor produces the primary variant plus optional thumbnails and
// cleans stale versions in every directory it writes to.
type Processor struct {
	fileStorage fileStorage
	encoder     encoder
	cleaner     cleaner
	opts        Options

	locker   locker
	observer observer
	now      func() time.Time
}

// Option customizes a Processor.
type Option func(*Processor)

// WithLocker serializes runs that target the same directory and logical name.
func WithLocker(l locker) Option {
	return func(p *Processor) { p.locker = l }
}

// WithObserver reports per-variant metrics.
func WithObserver(o observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithClock overrides the time source used for variant stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a new Processor.
func New(fs fileStorage, enc encoder, c cleaner, opts Options, options ...Option) *Processor {
	p := &Processor{
		fileStorage: fs,
		encoder:     enc,
		cleaner:     c,
		opts:        opts,
		now:         time.Now,
	}
	for _, o := range options {
		o(p)
	}

	return p
}

// Run writes the variants for an already decoded and upright image.
//
// The primary variant is fitted inside the primary bounds. When thumbnails
// are requested each class is produced from the same source image. A failed
// class aborts the run, but classes written before it are kept: every
// directory is consistent on its own.
func (p *Processor) Run(ctx context.Context, img codec.RawImage, job Job) (Result, error) {
	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, path.Join("/", job.Dir, job.LogicalName))
		if err != nil {
			return Result{}, fmt.Errorf("failed to lock %s: %w", job.LogicalName, err)
		}
		defer unlock()
	}

	stamp := p.now().Unix()

	// Generate the primary variant.
	primary := transform.FitWithin(img, p.opts.PrimaryWidth, p.opts.PrimaryHeight)
	v, err := p.write(ctx, "primary", primary, job.Dir, job.LogicalName, stamp, job.Format, p.opts.Quality)
	if err != nil {
		return Result{}, fmt.Errorf("failed to write primary variant: %w", err)
	}

	res := Result{Primary: v}
	if !job.Thumbnails {
		return res, nil
	}

	// Generate thumbnails, one subdirectory per class.
	for _, class := range p.opts.Classes {
		thumb := transform.Resize(img, class.Width, class.Height, p.opts.ThumbnailMode)

		quality := class.Quality
		if quality == 0 {
			quality = p.opts.Quality
		}

		dir := path.Join(job.Dir, class.Dir)
		v, err := p.write(ctx, class.Dir, thumb, dir, job.LogicalName, stamp, class.Format, quality)
		if err != nil {
			return res, fmt.Errorf("failed to write %s thumbnail: %w", class.Dir, err)
		}
		res.Thumbnails = append(res.Thumbnails, v)
	}

	return res, nil
}

// write encodes img, saves it as {logical}_{stamp}.{ext} in dir and removes
// older versions of the same logical name from dir.
func (p *Processor) write(
	ctx context.Context,
	class string,
	img codec.RawImage,
	dir, logical string,
	stamp int64,
	format codec.Format,
	quality int,
) (v Variant, err error) {
	start := time.Now()
	removed := 0
	defer func() {
		if p.observer != nil {
			p.observer.ObserveVariant(class, string(format), v.Size, removed, time.Since(start), err)
		}
	}()

	if !codec.SupportsAlpha(format) {
		img = transform.ToOpaque(img, p.opts.Background)
	}

	data, err := p.encoder.Encode(img, format, quality)
	if err != nil {
		return Variant{}, err
	}

	name := naming.VariantName(logical, stamp, naming.Extension(format))

	stored, err := p.fileStorage.Save(ctx, dir, name, data)
	if err != nil {
		return Variant{}, err
	}

	// Cleanup problems never fail the request.
	removed, cerr := p.cleaner.Clean(ctx, dir, logical, name)
	if cerr != nil {
		zlog.Logger.Warn().Err(cerr).Str("dir", dir).Str("prefix", logical).Msg("failed to clean stale variants")
	}

	zlog.Logger.Info().
		Str("class", class).
		Str("file", stored).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("bytes", len(data)).
		Int("removed", removed).
		Msg("variant written")

	return Variant{
		Class:  class,
		Dir:    dir,
		Name:   name,
		Format: format,
		Width:  img.Width,
		Height: img.Height,
		Size:   len(data),
		Stored: stored,
	}, nil
}
