package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Message types sent on the session stream.
const (
	MessageState   = "state"
	MessageFailure = "failure"
	MessageError   = "error"
)

// SessionFactory creates the session backing one websocket connection.
type SessionFactory func(notifier session.Notifier) *session.Session

// StreamMessage is one frame on the session stream.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type noticeData struct {
	Message string `json:"message"`
}

func sessionStreamHandler(allowed []string, sessions SessionFactory, logger *slog.Logger) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowed, r.Header.Get("Origin"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", slog.Any("error", err))
			return
		}
		defer conn.Close()

		notices := make(chan StreamMessage, 8)
		push := func(msg StreamMessage) {
			select {
			case notices <- msg:
			default:
				logger.Warn("session stream notice dropped", slog.String("type", msg.Type))
			}
		}

		sess := sessions(session.NotifierFunc(func(message string) {
			push(StreamMessage{Type: MessageFailure, Data: noticeData{Message: message}})
		}))
		updates, unsubscribe := sess.Subscribe(16)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			writeStream(ctx, conn, updates, notices, logger)
		}()

		conn.SetReadLimit(maxRequestBytes)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		for {
			var req orchestrateRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("session stream read failed", slog.Any("error", err))
				}
				break
			}
			wg.Add(1)
			go func(alert string) {
				defer wg.Done()
				err := sess.Run(ctx, alert)
				if errors.Is(err, session.ErrEmptyAlert) || errors.Is(err, session.ErrRunInProgress) {
					push(StreamMessage{Type: MessageError, Data: noticeData{Message: err.Error()}})
				}
			}(req.Alert)
		}

		cancel()
		wg.Wait()
	})
}

func writeStream(ctx context.Context, conn *websocket.Conn, updates <-chan models.SessionState, notices <-chan StreamMessage, logger *slog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(msg StreamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("session stream write failed", slog.Any("error", err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case state, ok := <-updates:
			if !ok || !write(StreamMessage{Type: MessageState, Data: state}) {
				return
			}
		case msg := <-notices:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
