package processor

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stale "github.com/aliskhannn/image-converter/internal/cleaner"
	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/storage/local"
	"github.com/aliskhannn/image-converter/internal/transform"
)

var testOptions = Options{
	PrimaryWidth:  1200,
	PrimaryHeight: 800,
	Quality:       80,
	ThumbnailMode: transform.ModeExact,
	Background:    "#ffffff",
	Classes: []Class{
		{Dir: "100x100", Width: 100, Height: 100, Format: codec.FormatPNG},
		{Dir: "300x200", Width: 300, Height: 200, Format: codec.FormatJPEG, Quality: 70},
	},
}

type fixture struct {
	storage *local.Storage
	clock   time.Time
	proc    *Processor
}

func newFixture(t *testing.T, opts Options, options ...Option) *fixture {
	t.Helper()

	s, err := local.NewStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{storage: s, clock: time.Unix(1700000000, 0)}
	options = append([]Option{WithClock(func() time.Time { return f.clock })}, options...)
	f.proc = New(s, codec.New(), stale.New(s), opts, options...)

	return f
}

func (f *fixture) files(t *testing.T, dir string) []string {
	t.Helper()
	names, err := f.storage.List(context.Background(), dir)
	require.NoError(t, err)
	return names
}

func source(t *testing.T, w, h int, alpha uint8) codec.RawImage {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: alpha})
		}
	}
	raw, err := codec.Pack(img)
	require.NoError(t, err)
	return raw
}

func TestRunPrimaryOnly(t *testing.T) {
	f := newFixture(t, testOptions)

	res, err := f.proc.Run(context.Background(), source(t, 400, 300, 255), Job{
		Dir:         "/albums/2024",
		LogicalName: "photo",
		Format:      codec.FormatJPEG,
	})
	require.NoError(t, err)

	assert.Equal(t, "photo_1700000000.jpeg", res.Primary.Name)
	assert.Empty(t, res.Thumbnails)
	assert.FileExists(t, filepath.Join(f.storage.Root(), "albums", "2024", "photo_1700000000.jpeg"))
	assert.NoDirExists(t, filepath.Join(f.storage.Root(), "albums", "2024", "100x100"))
}

func TestRunPrimaryIsFittedToBounds(t *testing.T) {
	f := newFixture(t, testOptions)

	res, err := f.proc.Run(context.Background(), source(t, 2400, 1600, 255), Job{
		Dir: "big", LogicalName: "wide", Format: codec.FormatPNG,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, res.Primary.Width)
	assert.Equal(t, 800, res.Primary.Height)

	data, err := os.ReadFile(res.Primary.Stored)
	require.NoError(t, err)
	decoded, err := codec.New().Decode(data, res.Primary.Name)
	require.NoError(t, err)
	assert.Equal(t, 1200, decoded.Width)
	assert.Equal(t, 800, decoded.Height)
}

func TestRunWithThumbnails(t *testing.T) {
	f := newFixture(t, testOptions)

	res, err := f.proc.Run(context.Background(), source(t, 640, 480, 255), Job{
		Dir: "/trip", LogicalName: "beach", Format: codec.FormatJPEG, Thumbnails: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Thumbnails, 2)

	assert.Equal(t, "beach_1700000000.png", res.Thumbnails[0].Name)
	assert.Equal(t, 100, res.Thumbnails[0].Width)
	assert.Equal(t, 100, res.Thumbnails[0].Height)
	assert.Equal(t, "beach_1700000000.jpeg", res.Thumbnails[1].Name)
	assert.Equal(t, 300, res.Thumbnails[1].Width)
	assert.Equal(t, 200, res.Thumbnails[1].Height)

	for _, dir := range []string{"trip", "trip/100x100", "trip/300x200"} {
		names := f.files(t, dir)
		require.Len(t, names, 1, dir)
		assert.True(t, strings.HasPrefix(names[0], "beach_"), dir)
	}
}

func TestRunFitThumbnailsKeepAspect(t *testing.T) {
	opts := testOptions
	opts.ThumbnailMode = transform.ModeFit
	f := newFixture(t, opts)

	res, err := f.proc.Run(context.Background(), source(t, 600, 300, 255), Job{
		Dir: "fit", LogicalName: "pano", Format: codec.FormatJPEG, Thumbnails: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Thumbnails[0].Width)
	assert.Equal(t, 50, res.Thumbnails[0].Height)
	assert.Equal(t, 300, res.Thumbnails[1].Width)
	assert.Equal(t, 150, res.Thumbnails[1].Height)
}

func TestRunSupersedesPreviousUpload(t *testing.T) {
	f := newFixture(t, testOptions)
	ctx := context.Background()
	job := Job{Dir: "albums/2024", LogicalName: "photo", Format: codec.FormatJPEG, Thumbnails: true}

	_, err := f.proc.Run(ctx, source(t, 200, 200, 255), job)
	require.NoError(t, err)

	f.clock = f.clock.Add(90 * time.Second)
	res, err := f.proc.Run(ctx, source(t, 200, 200, 255), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"photo_1700000090.jpeg"}, f.files(t, "albums/2024"))
	assert.Equal(t, []string{"photo_1700000090.png"}, f.files(t, "albums/2024/100x100"))
	assert.Equal(t, []string{"photo_1700000090.jpeg"}, f.files(t, "albums/2024/300x200"))
	assert.Equal(t, "photo_1700000090.jpeg", res.Primary.Name)
}

func TestRunLeavesOtherLogicalNames(t *testing.T) {
	f := newFixture(t, testOptions)
	ctx := context.Background()

	_, err := f.proc.Run(ctx, source(t, 50, 50, 255), Job{Dir: "d", LogicalName: "a.b", Format: codec.FormatPNG})
	require.NoError(t, err)
	_, err = f.proc.Run(ctx, source(t, 50, 50, 255), Job{Dir: "d", LogicalName: "a", Format: codec.FormatPNG})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.b_1700000000.png", "a_1700000000.png"}, f.files(t, "d"))
}

func TestRunFlattensAlphaForJPEG(t *testing.T) {
	f := newFixture(t, testOptions)

	res, err := f.proc.Run(context.Background(), source(t, 32, 32, 60), Job{
		Dir: "alpha", LogicalName: "logo", Format: codec.FormatJPEG,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(res.Primary.Stored)
	require.NoError(t, err)
	decoded, err := codec.New().Decode(data, "")
	require.NoError(t, err)
	assert.Equal(t, codec.ModeRGB, decoded.Mode)
}

func TestRunKeepsEarlierClassesOnFailure(t *testing.T) {
	opts := testOptions
	opts.Classes = []Class{
		{Dir: "100x100", Width: 100, Height: 100, Format: codec.FormatPNG},
		{Dir: "300x200", Width: 300, Height: 200, Format: codec.Format("tiff")},
	}
	f := newFixture(t, opts)

	res, err := f.proc.Run(context.Background(), source(t, 120, 80, 255), Job{
		Dir: "partial", LogicalName: "p", Format: codec.FormatJPEG, Thumbnails: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)

	assert.Len(t, res.Thumbnails, 1)
	assert.Len(t, f.files(t, "partial"), 1)
	assert.Len(t, f.files(t, "partial/100x100"), 1)
	assert.Empty(t, f.files(t, "partial/300x200"))
}

type recordingLocker struct {
	keys     []string
	released int
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	return func() { l.released++ }, nil
}

type recordingObserver struct {
	classes []string
}

func (o *recordingObserver) ObserveVariant(class, _ string, _, _ int, _ time.Duration, _ error) {
	o.classes = append(o.classes, class)
}

func TestRunUsesLockerAndObserver(t *testing.T) {
	l := &recordingLocker{}
	o := &recordingObserver{}
	f := newFixture(t, testOptions, WithLocker(l), WithObserver(o))

	_, err := f.proc.Run(context.Background(), source(t, 40, 40, 255), Job{
		Dir: "albums/2024", LogicalName: "photo", Format: codec.FormatJPEG, Thumbnails: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/albums/2024/photo"}, l.keys)
	assert.Equal(t, 1, l.released)
	assert.Equal(t, []string{"primary", "100x100", "300x200"}, o.classes)
}
