package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/facecam/internal/utils"
	"go.uber.org/zap"
)

const megabyte = 1024 * 1024

// ErrDeviceClosed is returned when opening a device that was already used.
var ErrDeviceClosed = errors.New("capture device closed")

// Device owns one ffmpeg capture process and keeps the newest JPEG it produced.
// Older unread frames are overwritten, never queued.
type Device struct {
	spec utils.CaptureSpec
	log  *zap.Logger

	cmd    *utils.SafeCommand
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	latest   []byte
	latestAt time.Time
	unread   bool
	running  bool
	exitErr  error

	drops  atomic.Uint64
	frames atomic.Uint64
}

// DeviceStats is a snapshot of capture throughput.
type DeviceStats struct {
	Frames  uint64 // frames read from ffmpeg
	Dropped uint64 // frames overwritten before anyone sampled them
}

// NewDevice prepares a device for spec. Nothing is started until Open.
func NewDevice(spec utils.CaptureSpec, log *zap.Logger) *Device {
	return &Device{spec: spec, log: log.Named("device")}
}

// Open starts the capture process and the reader goroutine.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	if d.done != nil {
		d.mu.Unlock()
		return ErrDeviceClosed
	}
	d.done = make(chan struct{})
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	cmd := utils.NewCaptureCmd(ctx, d.spec)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		close(d.done)
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		close(d.done)
		return fmt.Errorf("failed to start ffmpeg for %s: %w", d.spec.Device, err)
	}

	d.mu.Lock()
	d.cmd = cmd
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.log.Info("capture started", zap.String("device", d.spec.Device), zap.String("format", d.spec.Format))

	go func() {
		defer close(d.done)
		readErr := d.consume(stdout)
		waitErr := cmd.Wait()

		d.mu.Lock()
		d.running = false
		// A cancelled context is a requested stop, not a failure
		if ctx.Err() == nil {
			d.exitErr = errors.Join(readErr, waitErr)
		}
		exitErr := d.exitErr
		d.mu.Unlock()

		if exitErr != nil {
			d.log.Warn("capture process exited", zap.Error(exitErr), zap.String("stderr", cmd.Stderr.String()))
		}
	}()
	return nil
}

// consume splits the MJPEG stream and publishes each frame to the latest slot.
func (d *Device) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		// scanner reuses its buffer, so the frame must be copied
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		d.publish(frame, time.Now())
	}
	return scanner.Err()
}

func (d *Device) publish(frame []byte, at time.Time) {
	d.mu.Lock()
	if d.unread {
		d.drops.Add(1)
	}
	d.latest = frame
	d.latestAt = at
	d.unread = true
	d.mu.Unlock()
	d.frames.Add(1)
}

// Latest returns the newest frame and when it arrived. ok is false when the
// process is not running or has not produced a frame yet.
func (d *Device) Latest() (frame []byte, at time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.latest == nil {
		return nil, time.Time{}, false
	}
	d.unread = false
	return d.latest, d.latestAt, true
}

// Err reports why the capture process stopped on its own, if it did.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitErr
}

// Stats returns throughput counters.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{Frames: d.frames.Load(), Dropped: d.drops.Load()}
}

// Close stops ffmpeg and waits for the reader to drain.
func (d *Device) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.running = false
	d.latest = nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	d.log.Info("capture stopped", zap.String("device", d.spec.Device), zap.Uint64("frames", d.frames.Load()), zap.Uint64("dropped", d.drops.Load()))
	return nil
}

// ListDevices enumerates V4L2 video devices.
func ListDevices() ([]string, error) {
	return listDevices("/dev/video*")
}

func listDevices(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
