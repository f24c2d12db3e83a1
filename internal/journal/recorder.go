package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer is the part of *store.Store the recorder needs.
type Writer interface {
	StartSession(ctx context.Context, deviceID string) (uuid.UUID, error)
	EndSession(ctx context.Context, id uuid.UUID) error
	InsertEvent(ctx context.Context, e store.Event) error
}

type entry struct {
	kind   string
	name   string
	detail string
}

// Recorder is a pipeline.Observer that journals camera sessions and workflow
// outcomes. Callbacks only enqueue; a single writer goroutine owns the
// database calls so the controller loop never waits on Postgres. When the
// queue is full the entry is dropped and counted.
type Recorder struct {
	pipeline.NopObserver

	w       Writer
	log     *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	entries chan entry
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder starts the writer goroutine. Close it after the controller.
func NewRecorder(w Writer, log *zap.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &Recorder{
		w:       w,
		log:     log.Named("journal"),
		timeout: 5 * time.Second,
		entries: make(chan entry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) OnCameraChange(active bool, deviceID string) {
	if active {
		r.enqueue(entry{kind: store.KindCameraStarted, detail: deviceID})
		return
	}
	r.enqueue(entry{kind: store.KindCameraStopped})
}

func (r *Recorder) OnMatched(name string) {
	r.enqueue(entry{kind: store.KindMatched, name: name})
}

func (r *Recorder) OnRegistrationProgress(captured, target int) {
	if captured == 0 {
		r.enqueue(entry{kind: store.KindRegistrationStarted, detail: fmt.Sprintf("target=%d", target)})
	}
}

func (r *Recorder) OnRegistrationComplete() {
	r.enqueue(entry{kind: store.KindRegistrationComplete})
}

func (r *Recorder) OnError(kind pipeline.ErrorKind, message string) {
	r.enqueue(entry{kind: store.KindError, name: string(kind), detail: message})
}

// Dropped reports how many entries were lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes queued entries and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) enqueue(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.entries <- e:
	default:
		r.dropped.Add(1)
		r.log.Warn("journal queue full, dropping entry", zap.String("kind", e.kind))
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	var session uuid.NullUUID
	var lastErr string

	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)

		switch e.kind {
		case store.KindCameraStarted:
			id, err := r.w.StartSession(ctx, e.detail)
			if err != nil {
				r.log.Warn("failed to open journal session", zap.Error(err))
				session = uuid.NullUUID{}
			} else {
				session = uuid.NullUUID{UUID: id, Valid: true}
			}
			lastErr = ""
		case store.KindError:
			// A dead backend fails every tick; keep one row per distinct failure
			key := e.name + ":" + e.detail
			if key == lastErr {
				cancel()
				continue
			}
			lastErr = key
		default:
			lastErr = ""
		}

		if err := r.w.InsertEvent(ctx, store.Event{SessionID: session, Kind: e.kind, Name: e.name, Detail: e.detail}); err != nil {
			r.log.Warn("failed to journal event", zap.String("kind", e.kind), zap.Error(err))
		}

		if e.kind == store.KindCameraStopped && session.Valid {
			if err := r.w.EndSession(ctx, session.UUID); err != nil {
				r.log.Warn("failed to close journal session", zap.Error(err))
			}
			session = uuid.NullUUID{}
		}
		cancel()
	}
}
