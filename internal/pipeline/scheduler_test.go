package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/andresmejia3/facecam/internal/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduler_StartStop(t *testing.T) {
	clk := &fakeClock{}
	s := NewScheduler(clk, time.Second)

	assert.Nil(t, s.C())
	assert.False(t, s.Stop())
	assert.True(t, s.Start())
	assert.False(t, s.Start(), "second start must not create a timer")
	assert.Equal(t, 1, clk.created())
	assert.NotNil(t, s.C())
	assert.True(t, s.Running())

	assert.True(t, s.Stop())
	assert.Nil(t, s.C())
	assert.True(t, clk.tickers[0].stopped.Load())
}

func TestScheduler_SkipReason(t *testing.T) {
	loop := make(manualLoop, 1)
	gate := NewRequestGate(context.Background(), loop.post, zap.NewNop())
	state := NewWorkflowState(3)
	s := NewScheduler(&fakeClock{}, time.Second)

	assert.Equal(t, "idle", s.skipReason(state, gate))

	state.CameraStarted("")
	assert.Equal(t, "idle", s.skipReason(state, gate))

	_ = state.StartVerify()
	assert.Equal(t, "", s.skipReason(state, gate))

	s.SetVisible(false)
	assert.Equal(t, "hidden", s.skipReason(state, gate))
	s.SetVisible(true)

	block := make(chan struct{})
	defer close(block)
	_, _ = gate.TryDispatch(types.Frame{}, func(context.Context, types.Frame) (*Response, error) {
		<-block
		return nil, nil
	}, func(Result) {})
	assert.Equal(t, "busy", s.skipReason(state, gate))

	assert.EqualValues(t, 5, s.ticks)
	assert.EqualValues(t, 4, s.skipped)
}

func TestRealClock(t *testing.T) {
	tk := realClock{}.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
