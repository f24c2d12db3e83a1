package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg logs)
// This ensures we don't lose the reason a capture process died.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps process logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACECAM ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nCAPTURE PROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for commands that cannot continue.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Capture Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureSpec describes the camera input handed to ffmpeg.
type CaptureSpec struct {
	Format string // v4l2, avfoundation, dshow, or "file"
	Device string // /dev/video0, "0", "video=Integrated Camera", or a file path
	Size   string // e.g. 1280x720, empty for the device default
	FPS    int    // 0 for the device default
}

// CaptureArgs builds the ffmpeg argument list for a live MJPEG stream on stdout.
func CaptureArgs(spec CaptureSpec) []string {
	// -hide_banner and -loglevel error keep the stderr buffer small on long sessions
	args := []string{"-hide_banner", "-loglevel", "error"}

	if spec.Format == "file" {
		// Loop the file at native rate so it behaves like a camera
		args = append(args, "-re", "-stream_loop", "-1")
	} else {
		if spec.Format != "" {
			args = append(args, "-f", spec.Format)
		}
		if spec.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(spec.FPS))
		}
		if spec.Size != "" {
			args = append(args, "-video_size", spec.Size)
		}
	}

	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	return append(args, "-i", spec.Device, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

// NewCaptureCmd creates the ffmpeg process that feeds the camera device.
func NewCaptureCmd(ctx context.Context, spec CaptureSpec) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", CaptureArgs(spec)...)
}
