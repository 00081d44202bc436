// Package preprocess turns image resources into normalised NCHW float32 tensors.
package preprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MeKo-Tech/foodlens/internal/mempool"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

const (
	// DefaultSize is the square input edge of common ImageNet classifiers.
	DefaultSize = 224
	// DefaultMaxBytes caps how much of a resource is read.
	DefaultMaxBytes = 20 << 20
	// DefaultMaxPixels caps the decoded area, about 40 megapixels.
	DefaultMaxPixels = 40_000_000
)

// ImageNet channel statistics.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// DecodeError reports an unreadable or undecodable resource.
type DecodeError struct {
	Resource string
	Op       string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image processing error in %s (%s): %v", e.Op, e.Resource, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BufferPool provides tensor backing storage.
type BufferPool interface {
	Get(n int) []float32
	Put(buf []float32)
}

// Config controls tensor geometry and normalisation.
type Config struct {
	Size      int
	Mean      [3]float32
	Std       [3]float32
	Filter    string
	MaxBytes  int64
	// MaxPixels bounds width*height, checked from the header before decoding.
	MaxPixels int64
}

// DefaultConfig returns 224x224 ImageNet normalisation with Lanczos resampling.
func DefaultConfig() Config {
	return Config{
		Size:      DefaultSize,
		Mean:      ImageNetMean,
		Std:       ImageNetStd,
		Filter:    "lanczos",
		MaxBytes:  DefaultMaxBytes,
		MaxPixels: DefaultMaxPixels,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("image size must be positive, got %d", c.Size)
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] must be non-zero", i)
		}
	}
	if _, ok := filters[strings.ToLower(c.Filter)]; c.Filter != "" && !ok {
		return fmt.Errorf("unknown resample filter %q", c.Filter)
	}
	return nil
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"lanczos":    imaging.Lanczos,
	"box":        imaging.Box,
}

// Option customises a Preprocessor.
type Option func(*Preprocessor)

// WithPool sets the buffer pool.
func WithPool(p BufferPool) Option { return func(pp *Preprocessor) { pp.pool = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(pp *Preprocessor) { pp.logger = l } }

// Preprocessor decodes resources into tensors. It is safe for concurrent use.
type Preprocessor struct {
	cfg    Config
	filter imaging.ResampleFilter
	pool   BufferPool
	logger *slog.Logger
}

// New creates a preprocessor. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) (*Preprocessor, error) {
	def := DefaultConfig()
	if cfg.Size == 0 {
		cfg.Size = def.Size
	}
	if cfg.Std == [3]float32{} {
		cfg.Mean, cfg.Std = def.Mean, def.Std
	}
	if cfg.Filter == "" {
		cfg.Filter = def.Filter
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = def.MaxPixels
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Preprocessor{
		cfg:    cfg,
		filter: filters[strings.ToLower(cfg.Filter)],
		pool:   &mempool.Pool{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Preprocessor) Config() Config { return p.cfg }

// Shape returns the tensor shape produced by ToTensor.
func (p *Preprocessor) Shape() []int64 {
	s := int64(p.cfg.Size)
	return []int64{1, 3, s, s}
}

// ToTensor reads and decodes res, center-crops it to Size x Size and writes
// normalised NCHW data into a pooled buffer. The caller must Release the tensor.
func (p *Preprocessor) ToTensor(ctx context.Context, res Resource) (*ImageTensor, error) {
	if IsEmpty(res) {
		return nil, &DecodeError{Op: "read", Err: errors.New("empty resource")}
	}
	id := res.ID()

	img, err := p.decode(ctx, res)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Resource: id, Op: "resize", Err: err}
	}

	b := img.Bounds()
	size := p.cfg.Size
	fitted := imaging.Fill(img, size, size, imaging.Center, p.filter)

	buf := p.pool.Get(3 * size * size)
	normalizeInto(fitted, buf, p.cfg.Mean, p.cfg.Std)

	p.logger.DebugContext(ctx, "image preprocessed",
		"resource", id,
		"width", b.Dx(),
		"height", b.Dy(),
		"size", size)

	return &ImageTensor{data: buf, shape: p.Shape(), pool: p.pool}, nil
}

func (p *Preprocessor) decode(ctx context.Context, res Resource) (image.Image, error) {
	id := res.ID()
	rc, err := res.Open(ctx)
	if err != nil {
		return nil, &DecodeError{Resource: id, Op: "open", Err: err}
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			p.logger.Warn("failed to close resource", "resource", id, "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(rc, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, &DecodeError{Resource: id, Op: "read", Err: err}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Resource: id, Op: "read", Err: errors.New("empty image data")}
	}
	if int64(len(data)) > p.cfg.MaxBytes {
		return nil, &DecodeError{Resource: id, Op: "read", Err: fmt.Errorf("image exceeds %d bytes", p.cfg.MaxBytes)}
	}

	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Resource: id, Op: "decode", Err: err}
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, &DecodeError{Resource: id, Op: "decode", Err: errors.New("invalid image dimensions")}
	}
	if px := int64(hdr.Width) * int64(hdr.Height); px > p.cfg.MaxPixels {
		return nil, &DecodeError{Resource: id, Op: "decode", Err: fmt.Errorf(
			"image is %dx%d, exceeds %d pixels", hdr.Width, hdr.Height, p.cfg.MaxPixels)}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Resource: id, Op: "decode", Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Resource: id, Op: "decode", Err: errors.New("invalid image dimensions")}
	}
	return img, nil
}

// normalizeInto writes (pixel/255 - mean) / std per channel in NCHW order.
func normalizeInto(img *image.NRGBA, dst []float32, mean, std [3]float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			px := row[x*4 : x*4+3]
			idx := y*w + x
			for c := range 3 {
				v := float32(px[c]) / 255.0
				dst[c*plane+idx] = (v - mean[c]) / std[c]
			}
		}
	}
}

// ImageTensor is a preprocessed [1,3,S,S] tensor backed by a pooled buffer.
type ImageTensor struct {
	once  sync.Once
	data  []float32
	shape []int64
	pool  BufferPool
}

// Data returns the NCHW values. It is nil after Release.
func (t *ImageTensor) Data() []float32 { return t.data }

// Shape returns [1,3,S,S].
func (t *ImageTensor) Shape() []int64 { return t.shape }

// Release returns the buffer to the pool. Safe to call more than once.
func (t *ImageTensor) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.pool != nil {
			t.pool.Put(t.data)
		}
		t.data = nil
	})
}
