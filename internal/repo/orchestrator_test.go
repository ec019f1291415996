package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorClientSend(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orchestrate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"generated_text":"hello"}]}`))
	}))
	defer server.Close()

	client := NewOrchestratorClient(server.URL+"/", "api/orchestrate", 0)
	resp, err := client.Send(context.Background(), "DB CPU at 98%")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alert": "DB CPU at 98%"}, received)

	results, ok := resp["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
}

func TestOrchestratorClientTransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{"detail":"upstream"}`, code: http.StatusBadGateway},
		{name: "not json", status: http.StatusOK, body: `<html>oops</html>`, code: http.StatusOK},
		{name: "array envelope", status: http.StatusOK, body: `[1,2]`, code: http.StatusOK},
		{name: "null envelope", status: http.StatusOK, body: `null`},
		{name: "trailing garbage", status: http.StatusOK, body: `{"results":[{"generated_text":"{\"a\":1}"}]} <html>proxy error</html>`, code: http.StatusOK},
		{name: "second object", status: http.StatusOK, body: `{"results":[]} {"results":[]}`, code: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOrchestratorClient("https://gateway.example", "/api/orchestrate", time.Second)
			client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tt.status,
					Status:     http.StatusText(tt.status),
					Body:       io.NopCloser(bytes.NewReader([]byte(tt.body))),
					Header:     make(http.Header),
				}, nil
			}))

			_, err := client.Send(context.Background(), "alert")
			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
			assert.Equal(t, tt.code, transportErr.StatusCode)
		})
	}
}

func TestOrchestratorClientNetworkFailure(t *testing.T) {
	client := NewOrchestratorClient("https://gateway.example", "/api/orchestrate", 0)
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	_, err := client.Send(context.Background(), "alert")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOrchestratorClientUnconfigured(t *testing.T) {
	client := NewOrchestratorClient("", "/api/orchestrate", 0)
	_, err := client.Send(context.Background(), "alert")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "http://h:8000/api/orchestrate", resolvePath("http://h:8000", "api/orchestrate"))
	assert.Equal(t, "http://h/prefix/api/orchestrate", resolvePath("http://h/prefix", "/api/orchestrate"))
	assert.Equal(t, "", resolvePath("", "/api/orchestrate"))
}
