package cmd

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/types"
	"github.com/schollz/progressbar/v3"
)

// outcome is what a foreground command waits for.
type outcome struct {
	matched  string
	complete bool
	fatal    error
}

// terminalObserver prints controller events to the terminal and reports the
// end of a workflow on done. Enrollment progress goes to a progress bar.
type terminalObserver struct {
	pipeline.NopObserver

	out          io.Writer
	done         chan outcome
	showOverlays bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newTerminalObserver(out io.Writer) *terminalObserver {
	return &terminalObserver{out: out, done: make(chan outcome, 1)}
}

// finish publishes the first outcome; later ones are dropped.
func (t *terminalObserver) finish(o outcome) {
	select {
	case t.done <- o:
	default:
	}
}

func (t *terminalObserver) OnCameraChange(active bool, deviceID string) {
	if active {
		fmt.Fprintf(t.out, "📷 Camera active (%s)\n", deviceID)
		return
	}
	fmt.Fprintln(t.out, "📴 Camera offline")
}

func (t *terminalObserver) OnOverlay(faces []types.Face) {
	if !t.showOverlays || len(faces) == 0 {
		return
	}
	for _, f := range faces {
		label := f.Label
		if label == "" {
			label = "?"
		}
		fmt.Fprintf(t.out, "   👤 %s (%.2f) at %.0f,%.0f %.0fx%.0f\n", label, f.Confidence, f.X, f.Y, f.W, f.H)
	}
}

func (t *terminalObserver) OnMatched(name string) {
	t.finish(outcome{matched: name})
}

func (t *terminalObserver) OnRegistrationProgress(captured, target int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar == nil || captured == 0 {
		t.bar = progressbar.NewOptions(target,
			progressbar.OptionSetDescription("📸 Capturing samples"),
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionShowCount(),
		)
	}
	_ = t.bar.Set(captured)
}

func (t *terminalObserver) OnRegistrationComplete() {
	t.mu.Lock()
	if t.bar != nil {
		_ = t.bar.Finish()
		t.bar = nil
	}
	t.mu.Unlock()
	t.finish(outcome{complete: true})
}

func (t *terminalObserver) OnError(kind pipeline.ErrorKind, message string) {
	switch kind {
	case pipeline.KindCamera:
		t.finish(outcome{fatal: errors.New(message)})
	default:
		fmt.Fprintf(t.out, "\n⚠️  %s error: %s\n", kind, message)
	}
}
