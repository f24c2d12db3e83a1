package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facecam/internal/backend"
	"github.com/andresmejia3/facecam/internal/capture"
	"github.com/andresmejia3/facecam/internal/types"
	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var verifyOnceDevice string

var verifyOnceCmd = &cobra.Command{
	Use:   "verify-once [image_path]",
	Short: "Verify a single image file, or one frame from the camera",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return runVerifyOnce(cmd.Context(), path)
	},
}

func init() {
	verifyOnceCmd.Flags().StringVarP(&verifyOnceDevice, "device", "d", "", "Camera device when no image is given (default: FACECAM_CAMERA_DEVICE)")
	rootCmd.AddCommand(verifyOnceCmd)
}

func runVerifyOnce(ctx context.Context, imagePath string) error {
	client, err := backend.New(Cfg.Backend.URL, Cfg.Backend.RequestTimeout)
	if err != nil {
		utils.ShowError("Failed to configure backend", err, nil)
		return err
	}

	var frame types.Frame
	if imagePath != "" {
		frame, err = frameFromFile(imagePath)
	} else {
		frame, err = frameFromCamera(ctx, verifyOnceDevice)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	res, err := client.Verify(ctx, frame.Image)
	if err != nil {
		utils.ShowError("Verification request failed", err, nil)
		return err
	}

	if !res.Matched {
		fmt.Println("❌ No match found.")
		return nil
	}
	if res.Confidence > 0 {
		fmt.Printf("✅ Found Match: %s (confidence %.2f)\n", res.Name, res.Confidence)
	} else {
		fmt.Printf("✅ Found Match: %s\n", res.Name)
	}
	return nil
}

func frameFromFile(path string) (types.Frame, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return types.Frame{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return types.Frame{}, err
	}
	frame, err := capture.Encode(raw, capture.Options{
		Quality:  Cfg.Pipeline.JPEGQuality,
		MaxWidth: Cfg.Pipeline.MaxFrameWidth,
	})
	if err != nil {
		utils.ShowError("Unsupported image", err, nil)
		return types.Frame{}, err
	}
	return frame, nil
}

func frameFromCamera(ctx context.Context, device string) (types.Frame, error) {
	fmt.Fprintln(os.Stderr, "📷 Grabbing a frame...")
	sampler := newSampler(Cfg, Log)
	if err := sampler.Open(ctx, device); err != nil {
		utils.ShowError("Failed to start camera", err, nil)
		return types.Frame{}, err
	}
	defer sampler.Close()

	frame, err := waitFrame(ctx, sampler, 10*time.Second)
	if err != nil {
		utils.ShowError("Camera produced no frame", err, nil)
		return types.Frame{}, err
	}
	return frame, nil
}
