package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memWriter struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]bool // id -> ended
	events   []store.Event
	startErr error
	block    chan struct{}
}

func newMemWriter() *memWriter {
	return &memWriter{sessions: map[uuid.UUID]bool{}}
}

func (m *memWriter) StartSession(context.Context, string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return uuid.Nil, m.startErr
	}
	id := uuid.New()
	m.sessions[id] = false
	return id, nil
}

func (m *memWriter) EndSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = true
	return nil
}

func (m *memWriter) InsertEvent(_ context.Context, e store.Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memWriter) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

var _ pipeline.Observer = (*Recorder)(nil)

func TestRecorder_SessionLifecycle(t *testing.T) {
	w := newMemWriter()
	r := NewRecorder(w, zap.NewNop(), 16)

	r.OnCameraChange(true, "/dev/video0")
	r.OnStatusChange("Camera Active", true) // not journaled
	r.OnOverlay(nil)                        // not journaled
	r.OnMatched("Ada")
	r.OnCameraChange(false, "")
	r.OnError(pipeline.KindCamera, "permission denied")
	r.Close()

	assert.Equal(t, []string{
		store.KindCameraStarted,
		store.KindMatched,
		store.KindCameraStopped,
		store.KindError,
	}, w.kinds())

	require.Len(t, w.sessions, 1)
	for _, ended := range w.sessions {
		assert.True(t, ended)
	}

	ev := w.events
	assert.True(t, ev[0].SessionID.Valid)
	assert.Equal(t, "/dev/video0", ev[0].Detail)
	assert.Equal(t, ev[0].SessionID, ev[1].SessionID)
	assert.Equal(t, "Ada", ev[1].Name)
	assert.False(t, ev[3].SessionID.Valid, "events after stop are outside any session")
	assert.Equal(t, "camera", ev[3].Name)
}

func TestRecorder_CollapsesRepeatedErrors(t *testing.T) {
	w := newMemWriter()
	r := NewRecorder(w, zap.NewNop(), 16)

	r.OnError(pipeline.KindNetwork, "backend down")
	r.OnError(pipeline.KindNetwork, "backend down")
	r.OnError(pipeline.KindNetwork, "backend down")
	r.OnError(pipeline.KindNetwork, "timeout")
	r.OnMatched("Ada")
	r.OnError(pipeline.KindNetwork, "timeout")
	r.Close()

	assert.Equal(t, []string{store.KindError, store.KindError, store.KindMatched, store.KindError}, w.kinds())
}

func TestRecorder_RegistrationEvents(t *testing.T) {
	w := newMemWriter()
	r := NewRecorder(w, zap.NewNop(), 16)

	r.OnRegistrationProgress(0, 25)
	r.OnRegistrationProgress(1, 25)
	r.OnRegistrationProgress(25, 25)
	r.OnRegistrationComplete()
	r.Close()

	assert.Equal(t, []string{store.KindRegistrationStarted, store.KindRegistrationComplete}, w.kinds())
	assert.Equal(t, "target=25", w.events[0].Detail)
}

func TestRecorder_SessionStartFailure(t *testing.T) {
	w := newMemWriter()
	w.startErr = errors.New("db down")
	r := NewRecorder(w, zap.NewNop(), 16)

	r.OnCameraChange(true, "/dev/video0")
	r.OnMatched("Ada")
	r.Close()

	require.Len(t, w.events, 2)
	assert.False(t, w.events[1].SessionID.Valid)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := newMemWriter()
	w.block = make(chan struct{})
	r := NewRecorder(w, zap.NewNop(), 1)

	// First entry is picked up by the writer and blocks; the second fills the queue
	for i := 0; i < 10; i++ {
		r.OnMatched("Ada")
	}
	assert.GreaterOrEqual(t, r.Dropped(), uint64(8))

	close(w.block)
	r.Close()
	r.OnMatched("late") // ignored after close
	assert.LessOrEqual(t, len(w.events), 2)
}
