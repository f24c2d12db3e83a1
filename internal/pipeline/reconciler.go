package pipeline

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Outcome records which side effects Apply performed.
type Outcome struct {
	Discarded bool
	Overlay   bool
	Matched   bool
	Sampled   bool
	Completed bool
}

// Reconciler applies a resolved request against the workflow state as it is
// when the result arrives, not as it was when the frame was sent.
type Reconciler struct {
	state *WorkflowState
	obs   Observer
	log   *zap.Logger
}

func NewReconciler(state *WorkflowState, obs Observer, log *zap.Logger) *Reconciler {
	return &Reconciler{state: state, obs: obs, log: log.Named("reconciler")}
}

// Apply handles one result. dispatchMode is the mode the frame was sent under;
// workflow side effects only fire if the current mode is still that mode.
func (r *Reconciler) Apply(res Result, dispatchMode Mode) Outcome {
	var out Outcome
	camera := r.state.Camera()

	if res.Err != nil {
		if errors.Is(res.Err, ErrCancelled) {
			r.log.Debug("discarding cancelled result", zap.Uint64("id", res.RequestID))
			out.Discarded = true
			return out
		}
		r.log.Warn("recognition request failed", zap.Uint64("id", res.RequestID), zap.Error(res.Err))
		r.obs.OnError(KindNetwork, res.Err.Error())
		r.obs.OnStatusChange("Processing error: "+res.Err.Error(), camera.Active)
		return out
	}

	resp := res.Response
	if resp == nil || !resp.OK || !camera.Active {
		out.Discarded = true
		return out
	}

	// Overlay is visual feedback only, so a mode change does not suppress it
	r.obs.OnOverlay(resp.Faces)
	out.Overlay = true

	mode := r.state.Mode()
	if mode != dispatchMode {
		r.log.Debug("mode changed during flight; overlay only",
			zap.Uint64("id", res.RequestID), zap.Stringer("dispatched", dispatchMode), zap.Stringer("current", mode))
		return out
	}

	switch mode {
	case ModeVerifying:
		if resp.Matched && r.state.Matched() {
			out.Matched = true
			r.log.Info("identity matched", zap.String("name", resp.MatchName))
			r.obs.OnMatched(resp.MatchName)
			r.obs.OnStatusChange("Verified: "+resp.MatchName, camera.Active)
		}
	case ModeRegistering:
		if !resp.Captured {
			return out
		}
		reg := r.state.Registration()
		completed, err := r.state.FrameRegistered()
		if err != nil {
			return out
		}
		out.Sampled = true
		captured := reg.Captured + 1
		r.obs.OnRegistrationProgress(captured, reg.Target)
		if completed {
			out.Completed = true
			r.log.Info("registration complete", zap.String("name", reg.Name), zap.Int("samples", captured))
			r.obs.OnRegistrationComplete()
			r.obs.OnStatusChange("Registration complete: "+reg.Name, camera.Active)
		} else {
			r.obs.OnStatusChange(fmt.Sprintf("Registration: Captured %d/%d", captured, reg.Target), camera.Active)
		}
	}
	return out
}
