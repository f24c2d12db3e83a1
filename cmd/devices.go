package cmd

import (
	"fmt"

	"github.com/andresmejia3/facecam/internal/capture"
	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available camera devices",
	Run: func(cmd *cobra.Command, args []string) {
		devices, err := capture.ListDevices()
		if err != nil {
			utils.Die("Failed to enumerate cameras", err, nil)
		}
		if len(devices) == 0 {
			fmt.Println("No camera devices found.")
			return
		}
		for _, d := range devices {
			marker := " "
			if d == Cfg.Camera.Device {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, d)
		}
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
