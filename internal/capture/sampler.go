package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/andresmejia3/facecam/internal/types"
	"github.com/andresmejia3/facecam/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// ErrNoFrame means the source has no current frame: not open yet, not
// producing yet, stopped, or the newest frame is too old.
var ErrNoFrame = errors.New("no current frame")

// Options are the bandwidth/fidelity trade-offs applied to every frame.
type Options struct {
	Quality    int           // JPEG quality 1-100
	MaxWidth   int           // downscale wider frames; 0 keeps native width
	StaleAfter time.Duration // 0 disables the staleness check
}

// Source is a live frame buffer, e.g. a *Device.
type Source interface {
	Latest() (frame []byte, at time.Time, ok bool)
	Close() error
}

// Opener starts a Source for a device ID.
type Opener func(ctx context.Context, deviceID string) (Source, error)

// DeviceOpener opens ffmpeg-backed devices using spec as the template.
// An empty deviceID falls back to spec.Device.
func DeviceOpener(spec utils.CaptureSpec, log *zap.Logger) Opener {
	return func(ctx context.Context, deviceID string) (Source, error) {
		s := spec
		if deviceID != "" {
			s.Device = deviceID
		}
		d := NewDevice(s, log)
		if err := d.Open(ctx); err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Sampler owns the open video source and turns its newest buffer into a Frame on demand.
type Sampler struct {
	opts Options
	open Opener
	now  func() time.Time

	mu  sync.Mutex
	src Source
}

// NewSampler creates a sampler; no source is opened until Open.
func NewSampler(opts Options, open Opener) *Sampler {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 70
	}
	return &Sampler{opts: opts, open: open, now: time.Now}
}

// Open acquires the video source exclusively. Opening twice is an error.
func (s *Sampler) Open(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return errors.New("camera already open")
	}
	src, err := s.open(ctx, deviceID)
	if err != nil {
		return err
	}
	s.src = src
	return nil
}

// Close releases the video source. Safe to call when nothing is open.
func (s *Sampler) Close() error {
	s.mu.Lock()
	src := s.src
	s.src = nil
	s.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Close()
}

// Capture encodes the newest frame. It reads the buffer only.
func (s *Sampler) Capture() (types.Frame, error) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return types.Frame{}, fmt.Errorf("%w: camera not open", ErrNoFrame)
	}

	raw, at, ok := src.Latest()
	if !ok {
		return types.Frame{}, ErrNoFrame
	}
	if s.opts.StaleAfter > 0 {
		if age := s.now().Sub(at); age > s.opts.StaleAfter {
			return types.Frame{}, fmt.Errorf("%w: newest frame is %s old", ErrNoFrame, age.Round(time.Millisecond))
		}
	}

	frame, err := Encode(raw, s.opts)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	frame.CapturedAt = at
	return frame, nil
}

// Encode decodes a JPEG/PNG still, applies MaxWidth and Quality, and returns
// it as a data URL frame. Width/Height are the source dimensions.
func Encode(raw []byte, opts Options) (types.Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return types.Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	out := img
	if opts.MaxWidth > 0 && width > opts.MaxWidth {
		newHeight := int(float64(height) * float64(opts.MaxWidth) / float64(width))
		resized := image.NewRGBA(image.Rect(0, 0, opts.MaxWidth, newHeight))
		// ApproxBiLinear keeps per-tick cost low; faces survive it fine
		draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 70
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return types.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return types.Frame{
		Image:      "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		CapturedAt: time.Now(),
		Width:      width,
		Height:     height,
	}, nil
}
