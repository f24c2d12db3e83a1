package types

import "time"

// Frame is a single still captured from the camera, encoded for transport.
// It is immutable once produced and owned by the dispatch that consumes it.
type Frame struct {
	Image      string // data URL ("data:image/jpeg;base64,...")
	CapturedAt time.Time
	Width      int
	Height     int
}

// Face is one detection in a processed frame. Coordinates are in source pixels.
type Face struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Matched    bool    `json:"matched"`
}

// ProcessFrameRequest is the body of POST /process_frame.
type ProcessFrameRequest struct {
	Image string `json:"image"`
}

// ProcessFrameResponse matches the JSON returned by POST /process_frame.
// Matched/Name are set by backends that report the best match at the top level.
type ProcessFrameResponse struct {
	OK           bool    `json:"ok"`
	Faces        []Face  `json:"faces"`
	ProcessingMS float64 `json:"processing_ms"`
	Matched      bool    `json:"matched,omitempty"`
	Name         string  `json:"name,omitempty"`
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// RegisterResponse reports whether the backend accepted the sample.
type RegisterResponse struct {
	Captured bool `json:"captured"`
}

// VerifyRequest is the body of POST /api/verify. An empty Image asks the
// backend to use its own capture.
type VerifyRequest struct {
	Image string `json:"image,omitempty"`
}

// VerifyResponse matches the JSON returned by POST /api/verify.
type VerifyResponse struct {
	Matched    bool    `json:"matched"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TrainResponse matches the JSON returned by POST /api/v1/train.
type TrainResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ErrorResult captures the error object returned by the backend on failure
type ErrorResult struct {
	Error string `json:"error"`
}
