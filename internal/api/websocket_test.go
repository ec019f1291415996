package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/incident-autopilot/internal/engine"
	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/session"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialSessionStream(t *testing.T, stub *orchestratorStub) *websocket.Conn {
	t.Helper()
	factory := func(notifier session.Notifier) *session.Session {
		controller := engine.NewStageController(nil, engine.WallClock{}, engine.StageTimings{
			ReasoningDelay:  time.Millisecond,
			GovernanceDelay: time.Millisecond,
		})
		return session.New(nil, stub, controller, session.Options{Notifier: notifier})
	}
	server := httptest.NewServer(NewHTTPHandler(testServerConfig(), stub, factory, nil))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSessionStreamRevealsStages(t *testing.T) {
	stub := &orchestratorStub{resp: generated(`{"detection":{"severity":"High","system":"db1","pattern":"cpu-spike","escalation":true}}`)}
	conn := dialSessionStream(t, stub)

	initial := readFrame(t, conn)
	assert.Equal(t, MessageState, initial.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"alert": "DB CPU at 98%"}))

	var stages []models.PipelineStage
	for len(stages) == 0 || stages[len(stages)-1] != models.StageGovernance {
		f := readFrame(t, conn)
		require.Equal(t, MessageState, f.Type)
		var state models.SessionState
		require.NoError(t, json.Unmarshal(f.Data, &state))
		stages = append(stages, state.ActiveStage)
		if state.ActiveStage >= models.StageReasoning {
			require.NotNil(t, state.Result)
			assert.Equal(t, "db1", state.Result.Detection.System)
		}
	}

	for i := 1; i < len(stages); i++ {
		assert.GreaterOrEqual(t, stages[i], stages[i-1])
	}
}

func TestSessionStreamReportsFailure(t *testing.T) {
	stub := &orchestratorStub{resp: generated("no json here")}
	conn := dialSessionStream(t, stub)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"alert": "disk full"}))

	for {
		f := readFrame(t, conn)
		if f.Type != MessageFailure {
			continue
		}
		var notice struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &notice))
		assert.Equal(t, session.FailureMessage, notice.Message)
		return
	}
}

func TestSessionStreamRejectsBlankAlert(t *testing.T) {
	stub := &orchestratorStub{resp: generated("{}")}
	conn := dialSessionStream(t, stub)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"alert": "   "}))
	f := readFrame(t, conn)
	assert.Equal(t, MessageError, f.Type)
	assert.Empty(t, stub.alerts)
}
