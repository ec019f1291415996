package api

import (
	"context"
	"sync"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

type orchestratorStub struct {
	mu     sync.Mutex
	alerts []string
	resp   models.RawOrchestrationResponse
	err    error
}

func (o *orchestratorStub) Orchestrate(_ context.Context, alert string) (models.RawOrchestrationResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerts = append(o.alerts, alert)
	return o.resp, o.err
}

// Send lets the stub back a session directly.
func (o *orchestratorStub) Send(ctx context.Context, alert string) (models.RawOrchestrationResponse, error) {
	return o.Orchestrate(ctx, alert)
}

func generated(text string) models.RawOrchestrationResponse {
	return models.RawOrchestrationResponse{"results": []any{map[string]any{"generated_text": text}}}
}
