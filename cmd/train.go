package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/facecam/internal/backend"
	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Ask the backend to retrain its recognition model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		client, err := backend.New(Cfg.Backend.URL, Cfg.Backend.RequestTimeout)
		if err != nil {
			utils.ShowError("Failed to configure backend", err, nil)
			return err
		}

		fmt.Fprintln(os.Stderr, "🧠 Training model...")
		res, err := client.Train(cmd.Context())
		if err != nil {
			utils.ShowError("Training failed", err, nil)
			return err
		}
		if !res.OK {
			err := fmt.Errorf("backend reported failure: %s", res.Message)
			utils.ShowError("Training failed", err, nil)
			return err
		}

		msg := res.Message
		if msg == "" {
			msg = "Model trained."
		}
		fmt.Printf("✅ %s\n", msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
