package pipeline

import (
	"context"

	"github.com/andresmejia3/facecam/internal/types"
	"go.uber.org/zap"
)

// Response is what a recognition round trip produced for one frame.
type Response struct {
	OK           bool
	Faces        []types.Face
	ProcessingMS float64
	Matched      bool   // any face (or the top-level result) matched an identity
	MatchName    string // label of the match, when Matched
	Captured     bool   // registration sample accepted by the backend
}

// DispatchFunc performs the backend round trip for one frame. It must honor ctx.
type DispatchFunc func(ctx context.Context, frame types.Frame) (*Response, error)

// Result is delivered back on the controller loop when a request resolves.
// Err is nil, ErrCancelled, or a *NetworkError.
type Result struct {
	RequestID uint64
	Response  *Response
	Err       error
}

// InFlightRequest is the single outstanding backend call.
type InFlightRequest struct {
	ID     uint64
	cancel context.CancelFunc
}

// RequestGate admits at most one request at a time and never queues.
// All methods run on the controller loop; only the request goroutine runs
// elsewhere, and it re-enters the loop through post.
type RequestGate struct {
	ctx      context.Context
	post     func(func()) bool
	log      *zap.Logger
	nextID   uint64
	inflight *InFlightRequest
}

// NewRequestGate creates a gate whose requests derive from ctx. post schedules
// a function on the controller loop and reports false once the loop is gone.
func NewRequestGate(ctx context.Context, post func(func()) bool, log *zap.Logger) *RequestGate {
	return &RequestGate{ctx: ctx, post: post, log: log.Named("gate")}
}

// Busy reports whether a request is in flight.
func (g *RequestGate) Busy() bool { return g.inflight != nil }

// InFlight returns 0 or 1.
func (g *RequestGate) InFlight() int {
	if g.inflight == nil {
		return 0
	}
	return 1
}

// TryDispatch starts call for frame unless a request is already in flight,
// in which case it returns ErrBusy and the frame is dropped. done runs on the
// loop after the slot has been cleared.
func (g *RequestGate) TryDispatch(frame types.Frame, call DispatchFunc, done func(Result)) (uint64, error) {
	if g.inflight != nil {
		return 0, ErrBusy
	}

	g.nextID++
	ctx, cancel := context.WithCancel(g.ctx)
	req := &InFlightRequest{ID: g.nextID, cancel: cancel}
	g.inflight = req
	g.log.Debug("request dispatched", zap.Uint64("id", req.ID))

	go func() {
		resp, err := call(ctx, frame)
		err = classify(ctx, err)

		posted := g.post(func() {
			cancel()
			res := Result{RequestID: req.ID, Response: resp, Err: err}
			if g.inflight == req {
				g.inflight = nil
			} else {
				// Superseded while in flight: whatever came back is stale
				res.Response, res.Err = nil, ErrCancelled
			}
			if res.Err != nil {
				res.Response = nil
			}
			done(res)
		})
		if !posted {
			cancel()
		}
	}()
	return req.ID, nil
}

// CancelInFlight signals the in-flight request and frees the slot at once.
// Its eventual completion is reported as ErrCancelled.
func (g *RequestGate) CancelInFlight() bool {
	if g.inflight == nil {
		return false
	}
	g.log.Debug("request cancelled", zap.Uint64("id", g.inflight.ID))
	g.inflight.cancel()
	g.inflight = nil
	return true
}
