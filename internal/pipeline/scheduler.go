package pipeline

import "time"

// Ticker is the subset of *time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests substitute a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
func (r realTicker) C() <-chan time.Time           { return r.t.C }
func (r realTicker) Stop()                         { r.t.Stop() }

// Scheduler is the fixed-cadence sampling timer. Missed or skipped ticks are
// lost; nothing is queued or caught up.
type Scheduler struct {
	clock    Clock
	interval time.Duration
	ticker   Ticker
	visible  bool

	ticks   uint64
	skipped uint64
}

// NewScheduler creates a stopped scheduler firing every interval.
func NewScheduler(clock Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{clock: clock, interval: interval, visible: true}
}

// Start arms the timer. It returns false if the timer was already running,
// so a camera session can never own two timers.
func (s *Scheduler) Start() bool {
	if s.ticker != nil {
		return false
	}
	s.ticker = s.clock.NewTicker(s.interval)
	return true
}

// Stop disarms the timer. It returns false if it was not running.
func (s *Scheduler) Stop() bool {
	if s.ticker == nil {
		return false
	}
	s.ticker.Stop()
	s.ticker = nil
	return true
}

func (s *Scheduler) Running() bool { return s.ticker != nil }

// C is the tick channel, or nil while stopped (a nil channel never fires).
func (s *Scheduler) C() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

// SetVisible pauses sampling while the view is hidden.
func (s *Scheduler) SetVisible(v bool) { s.visible = v }
func (s *Scheduler) Visible() bool     { return s.visible }

// skipReason decides a tick. An empty reason means capture and dispatch.
func (s *Scheduler) skipReason(state *WorkflowState, gate *RequestGate) string {
	s.ticks++
	reason := ""
	switch {
	case !s.visible:
		reason = "hidden"
	case !state.ShouldSample():
		reason = "idle"
	case gate.Busy():
		reason = "busy"
	}
	if reason != "" {
		s.skipped++
	}
	return reason
}
