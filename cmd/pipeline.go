package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/facecam/internal/backend"
	"github.com/andresmejia3/facecam/internal/capture"
	"github.com/andresmejia3/facecam/internal/config"
	"github.com/andresmejia3/facecam/internal/journal"
	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/types"
	"github.com/andresmejia3/facecam/internal/utils"
	"go.uber.org/zap"
)

// session bundles everything a live command needs. Close tears it down in
// dependency order: controller first, then the journal writer.
type session struct {
	backend  *backend.Client
	sampler  *capture.Sampler
	ctrl     *pipeline.Controller
	recorder *journal.Recorder
}

func captureSpec(cfg *config.Config) utils.CaptureSpec {
	return utils.CaptureSpec{
		Format: cfg.Camera.Format,
		Device: cfg.Camera.Device,
		Size:   cfg.Camera.Size,
		FPS:    cfg.Camera.FPS,
	}
}

func newSampler(cfg *config.Config, log *zap.Logger) *capture.Sampler {
	return capture.NewSampler(capture.Options{
		Quality:    cfg.Pipeline.JPEGQuality,
		MaxWidth:   cfg.Pipeline.MaxFrameWidth,
		StaleAfter: cfg.Pipeline.StaleAfter,
	}, capture.DeviceOpener(captureSpec(cfg), log))
}

// newSession wires sampler, backend and controller. When the journal is
// configured a Recorder is appended to observers.
func newSession(cfg *config.Config, log *zap.Logger, observers ...pipeline.Observer) (*session, error) {
	client, err := backend.New(cfg.Backend.URL, cfg.Backend.RequestTimeout)
	if err != nil {
		return nil, err
	}

	s := &session{backend: client, sampler: newSampler(cfg, log)}
	if DB != nil {
		s.recorder = journal.NewRecorder(DB, log, 0)
		observers = append(observers, s.recorder)
	}

	s.ctrl = pipeline.New(s.sampler, client, pipeline.Observers(observers), pipeline.Options{
		TickInterval:          cfg.Pipeline.TickInterval,
		RegisterTarget:        cfg.Pipeline.RegisterTarget,
		CaptureErrorThreshold: cfg.Pipeline.CaptureErrorThreshold,
		Logger:                log,
	})
	s.ctrl.Start()
	return s, nil
}

func (s *session) Close() {
	if err := s.ctrl.Close(); err != nil {
		Log.Warn("controller close", zap.Error(err))
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
}

// waitFrame polls the sampler until the camera produces its first frame.
func waitFrame(ctx context.Context, sampler *capture.Sampler, timeout time.Duration) (types.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		frame, err := sampler.Capture()
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, capture.ErrNoFrame) {
			return types.Frame{}, err
		}
		select {
		case <-ctx.Done():
			return types.Frame{}, fmt.Errorf("waiting for first frame: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
