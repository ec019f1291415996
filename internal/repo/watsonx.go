package repo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

// GenerationParams are the decoding parameters sent with every prompt.
type GenerationParams struct {
	MaxNewTokens  int      `json:"max_new_tokens"`
	Temperature   float64  `json:"temperature"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// WatsonxConfig configures the text-generation client.
type WatsonxConfig struct {
	BaseURL   string
	ProjectID string
	ModelID   string
	Version   string
	Params    GenerationParams
	Timeout   time.Duration
}

// WatsonxClient calls the hosted text-generation API with a bearer token
// obtained from the configured token source.
type WatsonxClient struct {
	cfg        WatsonxConfig
	endpoint   string
	httpClient *http.Client
}

// NewWatsonxClient constructs a client authenticated by tokens.
func NewWatsonxClient(cfg WatsonxConfig, tokens oauth2.TokenSource) *WatsonxClient {
	transport := http.DefaultTransport
	if tokens != nil {
		transport = &oauth2.Transport{Source: tokens, Base: http.DefaultTransport}
	}
	return &WatsonxClient{
		cfg:      cfg,
		endpoint: generationURL(cfg.BaseURL, cfg.Version),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// Generate submits prompt and returns the model response untouched.
func (c *WatsonxClient) Generate(ctx context.Context, prompt string) (models.RawOrchestrationResponse, error) {
	if c.endpoint == "" {
		return nil, &TransportError{Op: "generate", Err: fmt.Errorf("watsonx url not configured")}
	}

	body := map[string]any{
		"project_id": c.cfg.ProjectID,
		"model_id":   c.cfg.ModelID,
		"input":      prompt,
		"parameters": c.cfg.Params,
	}

	var out models.RawOrchestrationResponse
	if err := postJSON(ctx, c.httpClient, "generate", c.endpoint, body, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &TransportError{Op: "generate", Err: fmt.Errorf("response envelope is not a JSON object")}
	}
	return out, nil
}

func generationURL(baseURL, version string) string {
	endpoint := resolvePath(strings.TrimRight(baseURL, "/"), "/ml/v1/text/generation")
	if endpoint == "" {
		return ""
	}
	if version == "" {
		return endpoint
	}
	return endpoint + "?version=" + url.QueryEscape(version)
}
