package pipeline

import (
	"fmt"
	"strings"
)

// Mode is the active workflow.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRegistering
	ModeVerifying
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRegistering:
		return "registering"
	case ModeVerifying:
		return "verifying"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Registration is the payload of ModeRegistering.
type Registration struct {
	Captured int
	Target   int
	Name     string
	Email    string
}

// CameraState is independent of Mode: the feed can be live while Idle.
type CameraState struct {
	Active   bool
	DeviceID string
}

// WorkflowState is the single source of truth for whether sampling should
// happen and whether a response is still relevant. It is mutated only through
// the transitions below and is owned by the controller loop.
type WorkflowState struct {
	target int
	camera CameraState
	mode   Mode
	reg    Registration
}

// NewWorkflowState creates an idle state whose registrations need target samples.
func NewWorkflowState(target int) *WorkflowState {
	if target < 1 {
		target = 1
	}
	return &WorkflowState{target: target}
}

func (s *WorkflowState) Mode() Mode                 { return s.mode }
func (s *WorkflowState) Camera() CameraState        { return s.camera }
func (s *WorkflowState) Registration() Registration { return s.reg }

// ShouldSample is the only predicate the scheduler consults each tick.
func (s *WorkflowState) ShouldSample() bool {
	return s.camera.Active && s.mode != ModeIdle
}

// CameraStarted marks the feed live. Mode is untouched (always Idle here).
func (s *WorkflowState) CameraStarted(deviceID string) {
	s.camera = CameraState{Active: true, DeviceID: deviceID}
}

// CameraStopped forces Idle from any mode. It returns the mode that was left.
func (s *WorkflowState) CameraStopped() Mode {
	prev := s.mode
	s.camera = CameraState{}
	s.toIdle()
	return prev
}

// StartRegister enters Registering{0, target, name, email}.
func (s *WorkflowState) StartRegister(name, email string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if !s.camera.Active {
		return ErrCameraInactive
	}
	if s.mode != ModeIdle {
		return ErrModeActive
	}
	s.mode = ModeRegistering
	s.reg = Registration{Target: s.target, Name: name, Email: strings.TrimSpace(email)}
	return nil
}

// FrameRegistered counts one accepted sample. completed is true exactly when
// the count reaches the target, at which point the state is already Idle.
func (s *WorkflowState) FrameRegistered() (completed bool, err error) {
	if s.mode != ModeRegistering {
		return false, ErrNotRegistering
	}
	s.reg.Captured++
	if s.reg.Captured >= s.reg.Target {
		s.toIdle()
		return true, nil
	}
	return false, nil
}

// StartVerify enters Verifying.
func (s *WorkflowState) StartVerify() error {
	if !s.camera.Active {
		return ErrCameraInactive
	}
	if s.mode != ModeIdle {
		return ErrModeActive
	}
	s.mode = ModeVerifying
	return nil
}

// Cancel returns to Idle from any mode and reports the mode that was left.
func (s *WorkflowState) Cancel() Mode {
	prev := s.mode
	s.toIdle()
	return prev
}

// Matched ends a verification. Only valid while Verifying.
func (s *WorkflowState) Matched() bool {
	if s.mode != ModeVerifying {
		return false
	}
	s.toIdle()
	return true
}

func (s *WorkflowState) toIdle() {
	s.mode = ModeIdle
	s.reg = Registration{}
}
