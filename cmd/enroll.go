package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

// liveOptions holds the flags shared by the camera-driven commands.
type liveOptions struct {
	Device         string
	Email          string
	Target         int
	Timeout        time.Duration
	CheckDuplicate bool
	ShowFaces      bool
}

var enrollOpts liveOptions

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Register a person by capturing face samples from the camera",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), args[0], enrollOpts)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollOpts.Device, "device", "d", "", "Camera device (default: FACECAM_CAMERA_DEVICE)")
	enrollCmd.Flags().StringVarP(&enrollOpts.Email, "email", "e", "", "Email stored with the registration")
	enrollCmd.Flags().IntVarP(&enrollOpts.Target, "samples", "n", 0, "Samples to capture (default: FACECAM_REGISTER_TARGET or 25)")
	enrollCmd.Flags().DurationVarP(&enrollOpts.Timeout, "timeout", "t", 2*time.Minute, "Give up if registration has not completed in this time")
	enrollCmd.Flags().BoolVar(&enrollOpts.CheckDuplicate, "check-duplicate", false, "Abort if the face in front of the camera is already registered under another name")
	enrollCmd.Flags().BoolVar(&enrollOpts.ShowFaces, "show-faces", false, "Print every detection")
	rootCmd.AddCommand(enrollCmd)
}

func validateLiveFlags(opts *liveOptions) error {
	if opts.Target < 0 {
		err := fmt.Errorf("must be >= 1, got %d", opts.Target)
		utils.ShowError("Invalid sample count", err, nil)
		return err
	}
	if opts.Timeout <= 0 {
		err := fmt.Errorf("must be positive, got %s", opts.Timeout)
		utils.ShowError("Invalid timeout", err, nil)
		return err
	}
	return nil
}

func runEnroll(ctx context.Context, name string, opts liveOptions) error {
	if err := validateLiveFlags(&opts); err != nil {
		return err
	}
	name = strings.TrimSpace(name)

	cfg := *Cfg
	if opts.Target > 0 {
		cfg.Pipeline.RegisterTarget = opts.Target
	}

	term := newTerminalObserver(os.Stderr)
	term.showOverlays = opts.ShowFaces
	sess, err := newSession(&cfg, Log, term)
	if err != nil {
		utils.ShowError("Failed to configure backend", err, nil)
		return err
	}
	defer sess.Close()

	fmt.Fprintln(os.Stderr, "🚀 Starting camera...")
	if err := sess.ctrl.StartCamera(opts.Device); err != nil {
		utils.ShowError("Failed to start camera", err, nil)
		return err
	}

	if opts.CheckDuplicate {
		fmt.Fprintln(os.Stderr, "🔍 Checking for an existing registration...")
		frame, err := waitFrame(ctx, sess.sampler, 10*time.Second)
		if err != nil {
			utils.ShowError("Camera produced no frame", err, nil)
			return err
		}
		res, err := sess.backend.Verify(ctx, frame.Image)
		if err != nil {
			utils.ShowError("Duplicate check failed", err, nil)
			return err
		}
		if res.Matched && !strings.EqualFold(res.Name, name) {
			err := fmt.Errorf("face already registered as %q", res.Name)
			utils.ShowError("Refusing to enroll", err, nil)
			return err
		}
	}

	if err := sess.ctrl.StartRegister(name, opts.Email); err != nil {
		utils.ShowError("Failed to start registration", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "🧑 Enrolling %s. Look at the camera and move your head slowly.\n", name)

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case o := <-term.done:
		if o.fatal != nil {
			utils.ShowError("Camera failed", o.fatal, nil)
			return o.fatal
		}
		fmt.Fprintf(os.Stderr, "\n✅ Registration complete for %s.\n", name)
		return nil
	case <-timer.C:
		err := abortRegistration(sess.ctrl, opts.Timeout)
		utils.ShowError("Registration timed out", err, nil)
		return err
	case <-ctx.Done():
		_ = sess.ctrl.Cancel()
		fmt.Fprintln(os.Stderr, "\n🛑 Registration cancelled.")
		return errors.New("cancelled")
	}
}

type registrationController interface {
	Status() (pipeline.Status, error)
	Cancel() error
}

// abortRegistration cancels a timed-out enrollment. Progress is read first
// since Cancel resets the registration to idle.
func abortRegistration(ctrl registrationController, timeout time.Duration) error {
	st, _ := ctrl.Status()
	_ = ctrl.Cancel()
	return fmt.Errorf("captured %d/%d samples in %s", st.Registration.Captured, st.Registration.Target, timeout)
}
