package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andresmejia3/facecam/internal/types"
)

// Client talks to the recognition service over JSON/HTTP.
type Client struct {
	parsedURL *url.URL
	http      *http.Client
}

// APIError is returned for any non-2xx response. Message carries the
// backend's {"error": "..."} body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	return &Client{
		parsedURL: parsed,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// ProcessFrame sends one frame for detection and recognition.
func (c *Client) ProcessFrame(ctx context.Context, image string) (*types.ProcessFrameResponse, error) {
	return doPostJSON[types.ProcessFrameResponse](ctx, c, "process_frame", types.ProcessFrameRequest{Image: image})
}

// Register submits one enrollment sample.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.RegisterResponse, error) {
	return doPostJSON[types.RegisterResponse](ctx, c, "api/register", req)
}

// Verify asks for a single match decision on image.
func (c *Client) Verify(ctx context.Context, image string) (*types.VerifyResponse, error) {
	return doPostJSON[types.VerifyResponse](ctx, c, "api/verify", types.VerifyRequest{Image: image})
}

// Train asks the service to rebuild its recognition model.
func (c *Client) Train(ctx context.Context) (*types.TrainResponse, error) {
	return doPostJSON[types.TrainResponse](ctx, c, "api/v1/train", struct{}{})
}

func (c *Client) resolveURL(endpoint string) string {
	return c.parsedURL.JoinPath(endpoint).String()
}

// doPostJSON performs a POST with a JSON body and unmarshals the JSON response.
// Any 2xx status is success; everything else becomes an *APIError.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the configured base URL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// errorMessage extracts {"error": "..."} from a failure body, falling back to
// the trimmed raw body for non-JSON errors.
func errorMessage(body []byte) string {
	var errorResult types.ErrorResult
	if json.Unmarshal(body, &errorResult) == nil && errorResult.Error != "" {
		return errorResult.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
