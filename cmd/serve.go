package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facecam/internal/capture"
	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/andresmejia3/facecam/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveHost      string
	servePort      int
	serveAutostart bool
	serveDevice    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller behind an HTTP control API and live event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default: WEB_PORT or 8080)")
	serveCmd.Flags().BoolVar(&serveAutostart, "camera", false, "Start the camera immediately")
	serveCmd.Flags().StringVarP(&serveDevice, "device", "d", "", "Camera device for --camera (default: FACECAM_CAMERA_DEVICE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	host, port := Cfg.Web.Host, Cfg.Web.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	events := web.NewBroadcaster()
	term := newTerminalObserver(os.Stderr)
	sess, err := newSession(Cfg, Log, events, term)
	if err != nil {
		utils.ShowError("Failed to configure backend", err, nil)
		return err
	}
	defer sess.Close()

	var history web.History
	if DB != nil {
		history = DB
	} else {
		fmt.Fprintln(os.Stderr, "ℹ️  No database configured; history endpoints are disabled.")
	}

	srv := web.NewServer(web.Options{
		Host:    host,
		Port:    port,
		Ctrl:    sess.ctrl,
		Events:  events,
		History: history,
		Devices: capture.ListDevices,
		Logger:  Log,
	})

	if serveAutostart {
		if err := sess.ctrl.StartCamera(serveDevice); err != nil {
			utils.ShowError("Failed to start camera", err, nil)
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	fmt.Fprintf(os.Stderr, "🌐 Listening on http://%s:%d (backend: %s)\n", host, port, Cfg.Backend.URL)

	select {
	case err := <-errCh:
		if err != nil {
			utils.ShowError("Web server failed", err, nil)
		}
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\n🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Log.Warn("web shutdown", zap.Error(err))
	}
	return nil
}
