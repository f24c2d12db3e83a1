package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/facecam/internal/utils"
	"go.uber.org/zap"
)

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeSource is an in-memory Source.
type fakeSource struct {
	frame  []byte
	at     time.Time
	ok     bool
	closed bool
}

func (f *fakeSource) Latest() ([]byte, time.Time, bool) { return f.frame, f.at, f.ok }
func (f *fakeSource) Close() error                      { f.closed = true; return nil }

func openerFor(src *fakeSource) Opener {
	return func(ctx context.Context, deviceID string) (Source, error) { return src, nil }
}

func decodeDataURL(t *testing.T, dataURL string) image.Image {
	t.Helper()
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("Expected JPEG data URL, got %q", dataURL[:min(len(dataURL), 40)])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		t.Fatalf("Invalid base64 payload: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Payload is not a JPEG: %v", err)
	}
	return img
}

func TestCapture_NotOpen(t *testing.T) {
	s := NewSampler(Options{Quality: 70}, openerFor(&fakeSource{}))
	if _, err := s.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame before Open, got %v", err)
	}
}

func TestCapture_NoFrameYet(t *testing.T) {
	s := NewSampler(Options{Quality: 70}, openerFor(&fakeSource{ok: false}))
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame while source has nothing buffered, got %v", err)
	}
}

func TestCapture_StaleFrame(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{frame: makeJPEG(t, 32, 24), at: now.Add(-5 * time.Second), ok: true}

	s := NewSampler(Options{Quality: 70, StaleAfter: 2 * time.Second}, openerFor(src))
	s.now = func() time.Time { return now }
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	_, err := s.Capture()
	if !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Expected stale frame to be rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "old") {
		t.Errorf("Expected staleness in message, got %v", err)
	}
}

func TestCapture_EncodesFrame(t *testing.T) {
	now := time.Now()
	src := &fakeSource{frame: makeJPEG(t, 64, 48), at: now, ok: true}

	s := NewSampler(Options{Quality: 70, StaleAfter: time.Second}, openerFor(src))
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	frame, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if frame.Width != 64 || frame.Height != 48 {
		t.Errorf("Expected source dimensions 64x48, got %dx%d", frame.Width, frame.Height)
	}
	if !frame.CapturedAt.Equal(now) {
		t.Errorf("Expected capture time of the buffered frame, got %v", frame.CapturedAt)
	}
	img := decodeDataURL(t, frame.Image)
	if img.Bounds().Dx() != 64 {
		t.Errorf("Expected native width without MaxWidth, got %d", img.Bounds().Dx())
	}
}

func TestCapture_Downscales(t *testing.T) {
	src := &fakeSource{frame: makeJPEG(t, 200, 100), at: time.Now(), ok: true}

	s := NewSampler(Options{Quality: 60, MaxWidth: 50}, openerFor(src))
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	frame, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	img := decodeDataURL(t, frame.Image)
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 25 {
		t.Errorf("Expected 50x25 after downscale, got %v", img.Bounds())
	}
	// Dimensions describe the source, so overlays can be mapped back
	if frame.Width != 200 || frame.Height != 100 {
		t.Errorf("Expected source dimensions preserved, got %dx%d", frame.Width, frame.Height)
	}
}

func TestCapture_GarbageFrame(t *testing.T) {
	src := &fakeSource{frame: []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}, at: time.Now(), ok: true}
	s := NewSampler(Options{}, openerFor(src))
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected undecodable frame to be a capture error, got %v", err)
	}
}

func TestSampler_OpenClose(t *testing.T) {
	src := &fakeSource{}
	s := NewSampler(Options{}, openerFor(src))

	if err := s.Open(context.Background(), "/dev/video0"); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(context.Background(), "/dev/video0"); err == nil {
		t.Error("Expected second Open to fail while the camera is held")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !src.closed {
		t.Error("Expected source to be released")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected Close without a source to be a no-op, got %v", err)
	}
}

func TestDevice_ConsumeKeepsNewest(t *testing.T) {
	d := NewDevice(utils.CaptureSpec{Device: "test"}, zap.NewNop())
	d.running = true

	a := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0x02, 0x02, 0xFF, 0xD9}
	c := []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}
	stream := bytes.Join([][]byte{a, b, c}, []byte{0x00})

	if err := d.consume(bytes.NewReader(stream)); err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	frame, _, ok := d.Latest()
	if !ok {
		t.Fatal("Expected a frame after consuming the stream")
	}
	if !bytes.Equal(frame, c) {
		t.Errorf("Expected newest frame %X, got %X", c, frame)
	}

	stats := d.Stats()
	if stats.Frames != 3 {
		t.Errorf("Expected 3 frames read, got %d", stats.Frames)
	}
	// a and b were overwritten without being sampled
	if stats.Dropped != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", stats.Dropped)
	}
}

func TestDevice_LatestWhenStopped(t *testing.T) {
	d := NewDevice(utils.CaptureSpec{Device: "test"}, zap.NewNop())
	d.publish([]byte{0xFF, 0xD8, 0xFF, 0xD9}, time.Now())

	if _, _, ok := d.Latest(); ok {
		t.Error("Expected no frame from a device whose process is not running")
	}
}

func TestListDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video2", "video0", "audio0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	devices, err := listDevices(filepath.Join(dir, "video*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 video devices, got %v", devices)
	}
	if filepath.Base(devices[0]) != "video0" || filepath.Base(devices[1]) != "video2" {
		t.Errorf("Expected sorted devices, got %v", devices)
	}
}
