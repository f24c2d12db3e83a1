package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/facecam/internal/types"
	"go.uber.org/zap"
)

// Recognizer is the recognition backend.
type Recognizer interface {
	ProcessFrame(ctx context.Context, image string) (*types.ProcessFrameResponse, error)
	Register(ctx context.Context, req types.RegisterRequest) (*types.RegisterResponse, error)
}

// Camera produces frames on demand.
type Camera interface {
	Open(ctx context.Context, deviceID string) error
	Close() error
	Capture() (types.Frame, error)
}

// Options tunes a Controller. Zero values take defaults.
type Options struct {
	TickInterval          time.Duration
	RegisterTarget        int
	CaptureErrorThreshold int
	Clock                 Clock
	Logger                *zap.Logger
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Mode             Mode
	Camera           CameraState
	Registration     Registration
	InFlight         int
	Visible          bool
	Sampling         bool
	Ticks            uint64
	SkippedTicks     uint64
	Dispatched       uint64
	LastProcessingMS float64
}

// Controller wires sampler, gate, scheduler, state and reconciler together.
// Every transition, tick and result runs as a turn on one loop goroutine, so
// none of the components need locks.
type Controller struct {
	camera  Camera
	backend Recognizer
	obs     Observer
	log     *zap.Logger
	opts    Options

	state *WorkflowState
	gate  *RequestGate
	sched *Scheduler
	rec   *Reconciler

	captureFailures int
	dispatched      uint64
	lastLatency     float64

	ctx    context.Context
	cancel context.CancelFunc
	turns  chan func()
	quit   chan struct{}
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// New builds a stopped controller. Call Start before anything else.
func New(camera Camera, backend Recognizer, obs Observer, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 500 * time.Millisecond
	}
	if opts.RegisterTarget <= 0 {
		opts.RegisterTarget = 25
	}
	if opts.CaptureErrorThreshold <= 0 {
		opts.CaptureErrorThreshold = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if obs == nil {
		obs = NopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		camera:  camera,
		backend: backend,
		obs:     obs,
		log:     opts.Logger.Named("pipeline"),
		opts:    opts,
		state:   NewWorkflowState(opts.RegisterTarget),
		sched:   NewScheduler(opts.Clock, opts.TickInterval),
		ctx:     ctx,
		cancel:  cancel,
		turns:   make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.gate = NewRequestGate(ctx, c.post, c.log)
	c.rec = NewReconciler(c.state, obs, c.log)
	return c
}

// Start launches the loop goroutine.
func (c *Controller) Start() {
	c.startOnce.Do(func() { go c.loop() })
}

// Close stops the camera, cancels any in-flight request and ends the loop.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// Make sure a never-started controller can still shut down
		c.Start()
		err = c.do(func() error {
			c.stopCamera()
			return nil
		})
		close(c.quit)
		<-c.done
		c.cancel()
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.turns:
			fn()
		case <-c.sched.C():
			c.tick()
		case <-c.quit:
			return
		}
	}
}

// post schedules fn as a turn. It reports false once the loop has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case c.turns <- fn:
		return true
	case <-c.done:
		return false
	}
}

// do runs fn as a turn and waits for its result.
func (c *Controller) do(fn func() error) error {
	errCh := make(chan error, 1)
	if !c.post(func() { errCh <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-c.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrClosed
		}
	}
}

// StartCamera opens deviceID and arms the sampling timer. The device lives
// until StopCamera or Close, independent of any caller context.
func (c *Controller) StartCamera(deviceID string) error {
	return c.do(func() error {
		if c.state.Camera().Active {
			return ErrCameraActive
		}
		if err := c.camera.Open(c.ctx, deviceID); err != nil {
			c.log.Error("camera failed to start", zap.String("device", deviceID), zap.Error(err))
			c.obs.OnError(KindCamera, "Error starting camera: "+err.Error())
			c.obs.OnStatusChange("Failed to start camera", false)
			return fmt.Errorf("start camera: %w", err)
		}
		c.state.CameraStarted(deviceID)
		c.captureFailures = 0
		c.sched.Start()
		c.log.Info("camera started", zap.String("device", deviceID))
		c.obs.OnCameraChange(true, deviceID)
		c.obs.OnStatusChange("Camera Active", true)
		return nil
	})
}

// StopCamera cancels any in-flight request, stops the timer, forces Idle and
// releases the device. Stopping an inactive camera is a no-op.
func (c *Controller) StopCamera() error {
	return c.do(func() error {
		c.stopCamera()
		return nil
	})
}

func (c *Controller) stopCamera() {
	if !c.state.Camera().Active {
		return
	}
	c.gate.CancelInFlight()
	c.sched.Stop()
	prev := c.state.CameraStopped()
	if err := c.camera.Close(); err != nil {
		c.log.Warn("camera close", zap.Error(err))
	}
	c.log.Info("camera stopped", zap.Stringer("abandoned_mode", prev))
	c.obs.OnOverlay(nil)
	c.obs.OnCameraChange(false, "")
	c.obs.OnStatusChange("Camera Offline", false)
}

// StartRegister begins collecting samples for name.
func (c *Controller) StartRegister(name, email string) error {
	return c.do(func() error {
		if err := c.state.StartRegister(name, email); err != nil {
			return err
		}
		reg := c.state.Registration()
		c.log.Info("registration started", zap.String("name", reg.Name), zap.Int("target", reg.Target))
		c.obs.OnRegistrationProgress(0, reg.Target)
		c.obs.OnStatusChange("Registration mode active", true)
		return nil
	})
}

// StartVerify begins looking for a known face.
func (c *Controller) StartVerify() error {
	return c.do(func() error {
		if err := c.state.StartVerify(); err != nil {
			return err
		}
		c.log.Info("verification started")
		c.obs.OnStatusChange("Verification mode active", true)
		return nil
	})
}

// Cancel abandons the active mode, cancels the in-flight request and clears
// the overlay. The camera stays live. Cancelling while Idle is a no-op.
func (c *Controller) Cancel() error {
	return c.do(func() error {
		prev := c.state.Cancel()
		if prev == ModeIdle {
			return nil
		}
		c.gate.CancelInFlight()
		c.log.Info("mode cancelled", zap.Stringer("mode", prev))
		c.obs.OnOverlay(nil)
		c.obs.OnStatusChange("Camera Active", c.state.Camera().Active)
		return nil
	})
}

// SetVisible pauses or resumes sampling when the view is hidden or shown.
func (c *Controller) SetVisible(visible bool) error {
	return c.do(func() error {
		c.sched.SetVisible(visible)
		c.log.Debug("visibility changed", zap.Bool("visible", visible))
		return nil
	})
}

// Status returns a snapshot taken on the loop.
func (c *Controller) Status() (Status, error) {
	var st Status
	err := c.do(func() error {
		st = Status{
			Mode:             c.state.Mode(),
			Camera:           c.state.Camera(),
			Registration:     c.state.Registration(),
			InFlight:         c.gate.InFlight(),
			Visible:          c.sched.Visible(),
			Sampling:         c.sched.Running(),
			Ticks:            c.sched.ticks,
			SkippedTicks:     c.sched.skipped,
			Dispatched:       c.dispatched,
			LastProcessingMS: c.lastLatency,
		}
		return nil
	})
	return st, err
}

func (c *Controller) tick() {
	if reason := c.sched.skipReason(c.state, c.gate); reason != "" {
		c.log.Debug("tick skipped", zap.String("reason", reason))
		return
	}

	frame, err := c.camera.Capture()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCapture, err)
		c.captureFailures++
		c.log.Debug("capture failed", zap.Int("streak", c.captureFailures), zap.Error(err))
		if c.captureFailures == c.opts.CaptureErrorThreshold {
			c.obs.OnError(KindCapture, fmt.Sprintf("no frame from camera for %d ticks: %v", c.captureFailures, err))
		}
		return
	}
	c.captureFailures = 0

	mode := c.state.Mode()
	call := c.recognize(mode, c.state.Registration())
	if _, err := c.gate.TryDispatch(frame, call, func(res Result) { c.onResult(res, mode) }); err != nil {
		c.log.Debug("dispatch refused", zap.Error(err))
		return
	}
	c.dispatched++
}

func (c *Controller) onResult(res Result, mode Mode) {
	out := c.rec.Apply(res, mode)
	if res.Response != nil && !out.Discarded {
		c.lastLatency = res.Response.ProcessingMS
	}
}

// recognize builds the round trip for one frame. Registering frames go
// through process_frame for the overlay and then to register for sampling.
func (c *Controller) recognize(mode Mode, reg Registration) DispatchFunc {
	return func(ctx context.Context, frame types.Frame) (*Response, error) {
		pr, err := c.backend.ProcessFrame(ctx, frame.Image)
		if err != nil {
			return nil, err
		}
		resp := toResponse(pr)
		if mode == ModeRegistering && pr.OK {
			rr, err := c.backend.Register(ctx, types.RegisterRequest{
				Name:  reg.Name,
				Email: reg.Email,
				Image: frame.Image,
			})
			if err != nil {
				return nil, err
			}
			resp.Captured = rr.Captured
		}
		return resp, nil
	}
}

func toResponse(pr *types.ProcessFrameResponse) *Response {
	resp := &Response{
		OK:           pr.OK,
		Faces:        pr.Faces,
		ProcessingMS: pr.ProcessingMS,
		Matched:      pr.Matched,
		MatchName:    pr.Name,
	}
	for _, f := range pr.Faces {
		if f.Matched {
			resp.Matched = true
			if resp.MatchName == "" {
				resp.MatchName = f.Label
			}
			break
		}
	}
	return resp
}
