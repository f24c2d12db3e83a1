package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var verifyOpts liveOptions

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Watch the camera until a registered face is recognized",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runVerify(cmd.Context(), verifyOpts)
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOpts.Device, "device", "d", "", "Camera device (default: FACECAM_CAMERA_DEVICE)")
	verifyCmd.Flags().DurationVarP(&verifyOpts.Timeout, "timeout", "t", 30*time.Second, "Give up if nobody is recognized in this time")
	verifyCmd.Flags().BoolVar(&verifyOpts.ShowFaces, "show-faces", false, "Print every detection")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(ctx context.Context, opts liveOptions) error {
	if err := validateLiveFlags(&opts); err != nil {
		return err
	}

	term := newTerminalObserver(os.Stderr)
	term.showOverlays = opts.ShowFaces
	sess, err := newSession(Cfg, Log, term)
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
	if err := sess.ctrl.StartVerify(); err != nil {
		utils.ShowError("Failed to start verification", err, nil)
		return err
	}
	fmt.Fprintln(os.Stderr, "🔍 Verifying...")

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case o := <-term.done:
		if o.fatal != nil {
			utils.ShowError("Camera failed", o.fatal, nil)
			return o.fatal
		}
		fmt.Printf("✅ Verified: %s\n", o.matched)
		return nil
	case <-timer.C:
		_ = sess.ctrl.Cancel()
		fmt.Println("❌ No registered face recognized.")
		return fmt.Errorf("no match within %s", opts.Timeout)
	case <-ctx.Done():
		_ = sess.ctrl.Cancel()
		fmt.Fprintln(os.Stderr, "\n🛑 Verification cancelled.")
		return errors.New("cancelled")
	}
}
