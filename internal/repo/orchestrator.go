package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

// TransportError reports that the orchestration call did not produce a JSON
// envelope: the request failed, the status was not 2xx, or the body did not
// decode as a JSON object.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// OrchestratorClient posts alerts to the orchestration endpoint.
type OrchestratorClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewOrchestratorClient constructs a client for baseURL + orchestratePath. A
// zero timeout leaves the request unbounded; pass a deadline through ctx to
// impose one per call.
func NewOrchestratorClient(baseURL, orchestratePath string, timeout time.Duration) *OrchestratorClient {
	return &OrchestratorClient{
		endpoint:   resolvePath(strings.TrimRight(baseURL, "/"), orchestratePath),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the resolved orchestration URL.
func (c *OrchestratorClient) Endpoint() string { return c.endpoint }

// Send submits alert and returns the decoded response envelope. It performs
// exactly one request.
func (c *OrchestratorClient) Send(ctx context.Context, alert string) (models.RawOrchestrationResponse, error) {
	if c == nil {
		return nil, &TransportError{Op: "orchestrate", Err: fmt.Errorf("client not initialised")}
	}
	if c.endpoint == "" {
		return nil, &TransportError{Op: "orchestrate", Err: fmt.Errorf("orchestrator base URL not configured")}
	}

	var out models.RawOrchestrationResponse
	if err := postJSON(ctx, c.httpClient, "orchestrate", c.endpoint, map[string]string{"alert": alert}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &TransportError{Op: "orchestrate", Err: fmt.Errorf("response envelope is not a JSON object")}
	}
	return out, nil
}

func resolvePath(baseURL, p string) string {
	if baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// postJSON sends payload as JSON and decodes a JSON response into out. Any
// failure is reported as a *TransportError.
func postJSON(ctx context.Context, client *http.Client, op, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("marshal payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(snippet))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	// The body must hold exactly one JSON value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("decode response: trailing data after JSON value")}
	}
	return nil
}
