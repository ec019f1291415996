package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/incident-autopilot/internal/metrics"
	"github.com/miradorstack/incident-autopilot/internal/models"
)

const (
	// DefaultReasoningDelay separates Reasoning from Action.
	DefaultReasoningDelay = 300 * time.Millisecond
	// DefaultGovernanceDelay separates Action from Governance.
	DefaultGovernanceDelay = 300 * time.Millisecond
)

// Generation identifies one run of the stage controller. Scheduled
// transitions carry the generation that created them and are ignored once
// the controller has moved on to a newer one.
type Generation uint64

// StageListener observes timer-driven stage advances. It is called without
// the controller lock held and never concurrently for the same generation.
type StageListener func(gen Generation, stage models.PipelineStage)

// StageTimings configures the delays of the scheduled transitions.
type StageTimings struct {
	ReasoningDelay  time.Duration
	GovernanceDelay time.Duration
}

// StageController drives the Detection → Reasoning → Action → Governance
// reveal. Start, OnParsed and Fail are synchronous; the last two advances
// happen on the scheduler.
type StageController struct {
	mu         sync.Mutex
	stage      models.PipelineStage
	generation Generation
	pending    Timer

	scheduler Scheduler
	timings   StageTimings
	listener  StageListener
	logger    *slog.Logger
}

// NewStageController constructs a controller in the NotStarted state.
func NewStageController(logger *slog.Logger, scheduler Scheduler, timings StageTimings) *StageController {
	if logger == nil {
		logger = slog.Default()
	}
	if scheduler == nil {
		scheduler = WallClock{}
	}
	if timings.ReasoningDelay <= 0 {
		timings.ReasoningDelay = DefaultReasoningDelay
	}
	if timings.GovernanceDelay <= 0 {
		timings.GovernanceDelay = DefaultGovernanceDelay
	}
	return &StageController{
		stage:     models.StageNotStarted,
		scheduler: scheduler,
		timings:   timings,
		logger:    logger,
	}
}

// SetListener registers the observer for scheduled advances.
func (c *StageController) SetListener(listener StageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Stage returns the current stage.
func (c *StageController) Stage() models.PipelineStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Generation returns the current generation.
func (c *StageController) Generation() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Start begins a new run at Detection regardless of the previous state and
// makes any transition still scheduled by an earlier run inert.
func (c *StageController) Start() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked()
	c.generation++
	c.stage = models.StageDetection
	metrics.ObserveStage(models.StageDetection)
	return c.generation
}

// OnParsed moves gen from Detection to Reasoning and schedules the Action
// and Governance advances. It reports false if gen is stale or not at
// Detection.
func (c *StageController) OnParsed(gen Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.stage != models.StageDetection {
		return false
	}
	c.stage = models.StageReasoning
	metrics.ObserveStage(models.StageReasoning)
	c.pending = c.scheduler.AfterFunc(c.timings.ReasoningDelay, func() {
		c.advance(gen, models.StageAction)
	})
	return true
}

// Fail resets gen to NotStarted and cancels its scheduled advances.
func (c *StageController) Fail(gen Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.cancelPendingLocked()
	c.stage = models.StageNotStarted
	return true
}

func (c *StageController) advance(gen Generation, next models.PipelineStage) {
	c.mu.Lock()
	if gen != c.generation || c.stage != next-1 {
		c.mu.Unlock()
		c.logger.Debug("stale stage transition ignored", slog.Uint64("generation", uint64(gen)), slog.String("stage", next.String()))
		return
	}
	c.stage = next
	c.pending = nil
	listener := c.listener
	c.mu.Unlock()

	metrics.ObserveStage(next)
	if listener != nil {
		listener(gen, next)
	}

	if next != models.StageAction {
		return
	}

	// Governance is scheduled only once Action has been delivered.
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.stage != models.StageAction {
		return
	}
	c.pending = c.scheduler.AfterFunc(c.timings.GovernanceDelay, func() {
		c.advance(gen, models.StageGovernance)
	})
}

func (c *StageController) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
