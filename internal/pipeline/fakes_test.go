package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/facecam/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock hands out tickers that only fire when the test says so.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// fire delivers one tick to the live ticker. It reports false when no ticker
// is running or the loop did not take the tick.
func (c *fakeClock) fire() bool {
	c.mu.Lock()
	var live *fakeTicker
	if n := len(c.tickers); n > 0 && !c.tickers[n-1].stopped.Load() {
		live = c.tickers[n-1]
	}
	c.mu.Unlock()
	if live == nil {
		return false
	}
	select {
	case live.ch <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

type fakeCamera struct {
	mu         sync.Mutex
	openErr    error
	captureErr error
	opened     int
	closed     int
	captures   int
}

func (c *fakeCamera) Open(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opened++
	return nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCamera) Capture() (types.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captureErr != nil {
		return types.Frame{}, c.captureErr
	}
	c.captures++
	return types.Frame{Image: fmt.Sprintf("data:image/jpeg;base64,frame%d", c.captures), CapturedAt: time.Now()}, nil
}

func (c *fakeCamera) setCaptureErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureErr = err
}

type fakeBackend struct {
	process  func(ctx context.Context, image string) (*types.ProcessFrameResponse, error)
	register func(ctx context.Context, req types.RegisterRequest) (*types.RegisterResponse, error)

	processCalls  atomic.Int32
	registerCalls atomic.Int32
	active        atomic.Int32
	maxActive     atomic.Int32
}

func (b *fakeBackend) ProcessFrame(ctx context.Context, image string) (*types.ProcessFrameResponse, error) {
	b.processCalls.Add(1)
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if b.process == nil {
		return &types.ProcessFrameResponse{OK: true}, nil
	}
	return b.process(ctx, image)
}

func (b *fakeBackend) Register(ctx context.Context, req types.RegisterRequest) (*types.RegisterResponse, error) {
	b.registerCalls.Add(1)
	if b.register == nil {
		return &types.RegisterResponse{Captured: true}, nil
	}
	return b.register(ctx, req)
}

// recorder is an Observer that logs every callback as a short string.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnCameraChange(active bool, _ string) { r.add("camera:%t", active) }
func (r *recorder) OnOverlay(faces []types.Face)         { r.add("overlay:%d", len(faces)) }
func (r *recorder) OnStatusChange(text string, _ bool)   { r.add("status:%s", text) }
func (r *recorder) OnMatched(name string)                { r.add("matched:%s", name) }
func (r *recorder) OnRegistrationProgress(n, target int) { r.add("progress:%d/%d", n, target) }
func (r *recorder) OnRegistrationComplete()              { r.add("complete") }
func (r *recorder) OnError(kind ErrorKind, msg string)   { r.add("error:%s:%s", kind, msg) }

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recorder) last(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if strings.HasPrefix(r.events[i], prefix) {
			return r.events[i]
		}
	}
	return ""
}

type harness struct {
	ctrl    *Controller
	clock   *fakeClock
	camera  *fakeCamera
	backend *fakeBackend
	rec     *recorder
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, backend *fakeBackend, opts Options) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		clock:   &fakeClock{},
		camera:  &fakeCamera{},
		backend: backend,
		rec:     &recorder{},
		logs:    logs,
	}
	opts.Clock = h.clock
	opts.Logger = zap.New(core)
	h.ctrl = New(h.camera, backend, h.rec, opts)
	h.ctrl.Start()
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

// tick fires one tick and waits until the loop has finished handling it.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.True(t, h.clock.fire(), "tick not delivered")
	_, err := h.ctrl.Status()
	require.NoError(t, err)
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.ctrl.Status()
	require.NoError(t, err)
	return st
}

// settle waits for the in-flight request to resolve.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := h.ctrl.Status()
		return err == nil && st.InFlight == 0
	}, time.Second, 5*time.Millisecond)
}
