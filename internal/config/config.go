package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Backend  BackendConfig
	Camera   CameraConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Web      WebConfig
	LogFile  string
}

type BackendConfig struct {
	URL            string        // base URL of the recognition service (default http://localhost:5000)
	RequestTimeout time.Duration // per-request ceiling (default 30s)
}

type CameraConfig struct {
	Format string // ffmpeg input format: v4l2, avfoundation, dshow, file (default v4l2)
	Device string // default device, e.g. /dev/video0
	Size   string // requested capture size (default 1280x720)
	FPS    int    // requested capture rate (default 15)
}

type PipelineConfig struct {
	TickInterval          time.Duration // sampling cadence (default 500ms)
	RegisterTarget        int           // samples per enrollment (default 25)
	JPEGQuality           int           // 1-100 (default 70)
	MaxFrameWidth         int           // downscale wider frames, 0 keeps native width
	StaleAfter            time.Duration // a buffered frame older than this is not "current" (default 2s)
	CaptureErrorThreshold int           // consecutive capture failures before surfacing (default 5)
}

type DatabaseConfig struct {
	URL string // PostgreSQL connection URL for the event journal (optional)
}

type WebConfig struct {
	Host string
	Port int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration string ("500ms", "2s").
// Returns the default value if the env var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultVal
}

// databaseURL prefers DATABASE_URL, then builds one from POSTGRES_* variables.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := envString("POSTGRES_PORT", "5432")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func Load() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            envString("FACECAM_BACKEND_URL", "http://localhost:5000"),
			RequestTimeout: envDuration("FACECAM_REQUEST_TIMEOUT", 30*time.Second),
		},
		Camera: CameraConfig{
			Format: envString("FACECAM_CAMERA_FORMAT", "v4l2"),
			Device: envString("FACECAM_CAMERA_DEVICE", "/dev/video0"),
			Size:   envString("FACECAM_CAMERA_SIZE", "1280x720"),
			FPS:    envInt("FACECAM_CAMERA_FPS", 15),
		},
		Pipeline: PipelineConfig{
			TickInterval:          envDuration("FACECAM_TICK_INTERVAL", 500*time.Millisecond),
			RegisterTarget:        envInt("FACECAM_REGISTER_TARGET", 25),
			JPEGQuality:           envInt("FACECAM_JPEG_QUALITY", 70),
			MaxFrameWidth:         envInt("FACECAM_MAX_FRAME_WIDTH", 0),
			StaleAfter:            envDuration("FACECAM_STALE_AFTER", 2*time.Second),
			CaptureErrorThreshold: envInt("FACECAM_CAPTURE_ERROR_THRESHOLD", 5),
		},
		Database: DatabaseConfig{
			URL: databaseURL(),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
		LogFile: os.Getenv("LOG_FILE"),
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend URL is required (FACECAM_BACKEND_URL)")
	}
	if c.Pipeline.TickInterval < 50*time.Millisecond {
		return fmt.Errorf("tick interval must be >= 50ms, got %s", c.Pipeline.TickInterval)
	}
	if c.Pipeline.RegisterTarget < 1 {
		return fmt.Errorf("register target must be >= 1, got %d", c.Pipeline.RegisterTarget)
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", c.Pipeline.JPEGQuality)
	}
	if c.Pipeline.MaxFrameWidth < 0 {
		return fmt.Errorf("max frame width must be >= 0, got %d", c.Pipeline.MaxFrameWidth)
	}
	if c.Pipeline.CaptureErrorThreshold < 1 {
		return fmt.Errorf("capture error threshold must be >= 1, got %d", c.Pipeline.CaptureErrorThreshold)
	}
	switch c.Camera.Format {
	case "v4l2", "avfoundation", "dshow", "file":
	default:
		return fmt.Errorf("unsupported camera format %q (use v4l2, avfoundation, dshow, file)", c.Camera.Format)
	}
	return nil
}
