// Package session runs one alert at a time through orchestration, extraction
// and the staged pipeline reveal, and publishes every state change.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/miradorstack/incident-autopilot/internal/engine"
	"github.com/miradorstack/incident-autopilot/internal/extract"
	"github.com/miradorstack/incident-autopilot/internal/metrics"
	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/repo"
)

// FailureMessage is shown to the user whenever a run ends without a result.
const FailureMessage = "Orchestration failed or returned invalid JSON."

var (
	// ErrEmptyAlert rejects blank input before any request is made.
	ErrEmptyAlert = errors.New("alert must not be empty")
	// ErrRunInProgress rejects a run while another is still loading.
	ErrRunInProgress = errors.New("an orchestration run is already in progress")
)

// Orchestrator submits an alert and returns the raw response envelope.
type Orchestrator interface {
	Send(ctx context.Context, alert string) (models.RawOrchestrationResponse, error)
}

// Notifier surfaces a user-visible failure notice.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string) { f(message) }

// Options carries the optional collaborators of a Session.
type Options struct {
	Assessor   *extract.Assessor
	Governance *engine.GovernanceEngine
	Notifier   Notifier
}

// Session holds the state of one orchestration UI.
type Session struct {
	mu         sync.Mutex
	state      models.SessionState
	generation engine.Generation

	orchestrator Orchestrator
	controller   *engine.StageController
	opts         Options
	logger       *slog.Logger

	subscribers map[int]chan models.SessionState
	nextSubID   int
}

// New wires a session to its orchestrator and stage controller. The session
// becomes the controller's listener.
func New(logger *slog.Logger, orchestrator Orchestrator, controller *engine.StageController, opts Options) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if controller == nil {
		controller = engine.NewStageController(logger, nil, engine.StageTimings{})
	}
	s := &Session{
		state:        models.SessionState{ActiveStage: models.StageNotStarted},
		orchestrator: orchestrator,
		controller:   controller,
		opts:         opts,
		logger:       logger,
		subscribers:  make(map[int]chan models.SessionState),
	}
	controller.SetListener(s.onStage)
	return s
}

// Run submits alert and drives the session through one full run. It
// returns the error that ended the run, or nil once the result is shown at
// Reasoning; the remaining stages follow on the controller's schedule.
func (s *Session) Run(ctx context.Context, alert string) error {
	alert = strings.TrimSpace(alert)
	if alert == "" {
		metrics.ObserveSessionRun(models.ErrorKindValidation)
		return ErrEmptyAlert
	}

	s.mu.Lock()
	if s.state.Loading {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	gen := s.controller.Start()
	s.generation = gen
	s.state = models.SessionState{
		RunID:       uuid.NewString(),
		Alert:       alert,
		Loading:     true,
		ActiveStage: models.StageDetection,
	}
	runID := s.state.RunID
	s.publishLocked()
	s.mu.Unlock()

	logger := s.logger.With(slog.String("run_id", runID))
	logger.Debug("orchestration run started")

	if s.orchestrator == nil {
		return s.fail(logger, gen, &repo.TransportError{Op: "orchestrate", Err: errors.New("orchestrator not configured")})
	}
	resp, err := s.orchestrator.Send(ctx, alert)
	if err != nil {
		return s.fail(logger, gen, err)
	}

	result, block, err := extract.Parse(resp)
	if err != nil {
		return s.fail(logger, gen, err)
	}

	var coverage *models.Coverage
	if s.opts.Assessor != nil {
		c := s.opts.Assessor.Assess(block)
		coverage = &c
	}
	findings := s.opts.Governance.Evaluate(result)

	s.mu.Lock()
	s.state.Result = result
	s.state.Coverage = coverage
	s.state.Governance = findings
	if s.controller.OnParsed(gen) {
		s.state.ActiveStage = models.StageReasoning
	}
	s.state.Loading = false
	s.publishLocked()
	s.mu.Unlock()

	metrics.ObserveSessionRun(models.ErrorKindNone)
	attrs := []any{slog.Int("findings", len(findings))}
	if coverage != nil {
		attrs = append(attrs, slog.String("coverage", string(coverage.Level)))
	}
	if result.Empty() {
		logger.Warn("orchestration run parsed but empty", attrs...)
		return nil
	}
	logger.Info("orchestration run parsed", attrs...)
	return nil
}

func (s *Session) fail(logger *slog.Logger, gen engine.Generation, err error) error {
	kind := Classify(err)

	s.mu.Lock()
	s.controller.Fail(gen)
	s.state.Loading = false
	s.state.Result = nil
	s.state.Coverage = nil
	s.state.Governance = nil
	s.state.ActiveStage = models.StageNotStarted
	s.state.LastError = kind
	s.publishLocked()
	s.mu.Unlock()

	metrics.ObserveSessionRun(kind)
	logger.Warn("orchestration run failed", slog.String("kind", string(kind)), slog.Any("error", err))
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(FailureMessage)
	}
	return err
}

// Classify maps a run error to the kind recorded in SessionState.
func Classify(err error) models.ErrorKind {
	switch {
	case err == nil:
		return models.ErrorKindNone
	case errors.Is(err, ErrEmptyAlert):
		return models.ErrorKindValidation
	case errors.Is(err, extract.ErrNoJSONFound):
		return models.ErrorKindNoJSON
	case errors.Is(err, extract.ErrMalformedResult):
		return models.ErrorKindMalformed
	default:
		return models.ErrorKindTransport
	}
}

func (s *Session) onStage(gen engine.Generation, stage models.PipelineStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || stage <= s.state.ActiveStage {
		return
	}
	s.state.ActiveStage = stage
	s.publishLocked()
}

// State returns a snapshot of the current state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe streams state snapshots, starting with the current one. A slow
// reader loses intermediate snapshots but always receives the latest. The
// returned function unsubscribes and closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan models.SessionState, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.SessionState, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) snapshotLocked() models.SessionState {
	snap := s.state
	snap.Governance = slices.Clone(s.state.Governance)
	return snap
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the oldest pending snapshot to make room for the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
