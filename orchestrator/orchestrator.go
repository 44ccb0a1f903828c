package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roundtable-ai/roundtable/gateway"
	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

// Mode selects the run termination policy.
type Mode string

const (
	// ModeFinite runs a fixed number of cycles.
	ModeFinite Mode = "finite"
	// ModeInfinite runs until cancelled.
	ModeInfinite Mode = "infinite"
	// ModeDynamic derives the cycle count from a requested duration and
	// rotates varying participant subsets through the cycles.
	ModeDynamic Mode = "dynamic"
)

// Config carries the engine's tunables. Zero values are replaced by the
// defaults from DefaultConfig.
type Config struct {
	// InterTurnDelay paces consecutive generations within a run.
	InterTurnDelay time.Duration `yaml:"inter_turn_delay"`
	// TaskRetention is how long terminal tasks stay queryable.
	TaskRetention time.Duration `yaml:"task_retention"`
	// CleanupInterval is how often expired tasks are collected.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// MaxFiniteCycles bounds the cycle count accepted for finite runs.
	MaxFiniteCycles int `yaml:"max_finite_cycles"`
	// DynamicWindowSize caps the per-cycle participant subset in dynamic mode.
	DynamicWindowSize int `yaml:"dynamic_window_size"`
	// DynamicWindowStep advances the subset window between dynamic cycles.
	DynamicWindowStep int `yaml:"dynamic_window_step"`
	// DynamicCycleLength is the duration budget of one dynamic cycle.
	DynamicCycleLength time.Duration `yaml:"dynamic_cycle_length"`
	// PreviewLength bounds per-response previews in composed prompts.
	PreviewLength int `yaml:"preview_length"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InterTurnDelay:     2 * time.Second,
		TaskRetention:      time.Hour,
		CleanupInterval:    10 * time.Minute,
		MaxFiniteCycles:    50,
		DynamicWindowSize:  3,
		DynamicWindowStep:  2,
		DynamicCycleLength: 150 * time.Second,
		PreviewLength:      300,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InterTurnDelay <= 0 {
		c.InterTurnDelay = d.InterTurnDelay
	}
	if c.TaskRetention <= 0 {
		c.TaskRetention = d.TaskRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MaxFiniteCycles <= 0 {
		c.MaxFiniteCycles = d.MaxFiniteCycles
	}
	if c.DynamicWindowSize <= 0 {
		c.DynamicWindowSize = d.DynamicWindowSize
	}
	if c.DynamicWindowStep <= 0 {
		c.DynamicWindowStep = d.DynamicWindowStep
	}
	if c.DynamicCycleLength <= 0 {
		c.DynamicCycleLength = d.DynamicCycleLength
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = d.PreviewLength
	}
	return c
}

// MetricsRecorder receives run, turn and quality observations. Implemented by
// internal/metrics; a nil recorder disables instrumentation.
type MetricsRecorder interface {
	RecordRun(mode, status string, duration time.Duration)
	RecordTurn(personality, provider string, duration time.Duration, tokens int)
	RecordQuality(personality string, overall int)
}

// RunOptions carries the mode-specific parameters of a run request.
type RunOptions struct {
	// Cycles is required for finite mode.
	Cycles int
	// Duration is required for dynamic mode.
	Duration time.Duration
}

// Deps bundles the engine's collaborators. Registry, Composer, Assessor and
// Clock default when nil; Metrics may stay nil.
type Deps struct {
	Conversations store.ConversationStore
	Personalities store.PersonalityStore
	Generator     gateway.Generator
	Registry      *Registry
	Composer      *Composer
	Assessor      *Assessor
	Metrics       MetricsRecorder
	Clock         store.Clock
}

// Orchestrator drives multi-personality runs: one active run per
// conversation, strictly sequential turns, cooperative cancellation at
// iteration boundaries.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    store.Clock

	mu     sync.Mutex
	active map[string]*Run  // by conversation id
	tasks  map[string]*Task // by task id

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an engine and starts its task retention collector. Call Close
// to stop it.
func New(cfg Config, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if deps.Registry == nil {
		deps.Registry = NewRegistry(nil)
	}
	if deps.Composer == nil {
		deps.Composer = NewComposer(nil, cfg.PreviewLength)
	}
	if deps.Assessor == nil {
		deps.Assessor = NewAssessor(logger)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(zap.String("component", "orchestrator")),
		now:    deps.Clock,
		active: make(map[string]*Run),
		tasks:  make(map[string]*Task),
		stopCh: make(chan struct{}),
	}
	go o.collectExpiredTasks()
	return o
}

// Close stops the background task collector. Active runs keep executing.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// StartRun validates and plans a run, registers it under the conversation's
// exclusive slot, and launches the turn loop in the background. The returned
// handle exposes Cancel, Pause/Resume and Done.
//
// Fails with a VALIDATION error for bad parameters, NOT_FOUND for unknown
// conversation or personality ids, and CONFLICT when the conversation
// already has an active run.
func (o *Orchestrator) StartRun(ctx context.Context, conversationID, prompt string, mode Mode, opts RunOptions) (*Run, error) {
	conv, err := o.deps.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr(err, "conversation", conversationID)
	}
	if !conv.IsActive {
		return nil, types.NewErrorf(types.ErrValidation, "conversation %s is not active", conversationID)
	}

	rotation := o.deps.Registry.Rotation(conv.ParticipantIDs)
	if len(rotation) == 0 {
		return nil, types.NewError(types.ErrValidation, "conversation has no eligible participants")
	}

	personalities := make(map[string]types.Personality, len(rotation))
	for _, id := range rotation {
		p, err := o.deps.Personalities.GetPersonality(ctx, id)
		if err != nil {
			return nil, mapStoreErr(err, "personality", id)
		}
		personalities[id] = p
	}

	plan, totalCycles, err := o.plan(mode, opts, rotation)
	if err != nil {
		return nil, err
	}

	synthesis := len(rotation) > 1 && (mode == ModeInfinite || totalCycles > 1)
	totalSteps := 0
	if plan != nil {
		for _, c := range plan {
			totalSteps += len(c)
		}
		if synthesis {
			totalSteps++
		}
	}

	now := o.now()
	task := &Task{
		ID:                    uuid.NewString(),
		ConversationID:        conversationID,
		Mode:                  mode,
		RequiredPersonalities: rotation,
		TotalSteps:            totalSteps,
		Status:                TaskPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	run := newRun(task.ID, conversationID, mode)

	o.mu.Lock()
	if _, busy := o.active[conversationID]; busy {
		o.mu.Unlock()
		return nil, types.NewErrorf(types.ErrConflict, "conversation %s already has an active run", conversationID)
	}
	o.active[conversationID] = run
	o.tasks[task.ID] = task
	o.mu.Unlock()

	base := prompt
	if conv.Instructions != "" {
		base = conv.Instructions + "\n\n" + prompt
	}

	o.logger.Info("run started",
		zap.String("task_id", task.ID),
		zap.String("conversation_id", conversationID),
		zap.String("mode", string(mode)),
		zap.Int("participants", len(rotation)),
		zap.Int("total_steps", totalSteps))

	go o.execute(run, task, base, rotation, personalities, plan, synthesis)
	return run, nil
}

// plan computes the per-cycle participant lists. A nil plan means unbounded
// (infinite mode generates full-rotation cycles lazily). Mode and options are
// validated before the single-participant collapse so malformed requests are
// rejected even when the rotation would reduce to one freeform turn.
func (o *Orchestrator) plan(mode Mode, opts RunOptions, rotation []string) ([][]string, int, error) {
	switch mode {
	case ModeFinite:
		if opts.Cycles < 1 {
			return nil, 0, types.NewError(types.ErrValidation, "finite runs require at least one cycle")
		}
		if opts.Cycles > o.cfg.MaxFiniteCycles {
			return nil, 0, types.NewErrorf(types.ErrValidation, "cycle count %d exceeds limit %d", opts.Cycles, o.cfg.MaxFiniteCycles)
		}
	case ModeInfinite:
	case ModeDynamic:
		if opts.Duration <= 0 {
			return nil, 0, types.NewError(types.ErrValidation, "dynamic runs require a positive duration")
		}
	default:
		return nil, 0, types.NewErrorf(types.ErrValidation, "unknown run mode %q", mode)
	}

	// A single participant is a single freeform turn regardless of mode.
	if len(rotation) == 1 {
		return [][]string{rotation}, 1, nil
	}

	switch mode {
	case ModeFinite:
		plan := make([][]string, opts.Cycles)
		for i := range plan {
			plan[i] = rotation
		}
		return plan, opts.Cycles, nil

	case ModeInfinite:
		return nil, 0, nil

	default: // ModeDynamic
		cycles := int(opts.Duration / o.cfg.DynamicCycleLength)
		if cycles < 2 {
			cycles = 2
		}
		plan := make([][]string, cycles)
		for c := 1; c <= cycles; c++ {
			if c == cycles {
				plan[c-1] = rotation // final cycle includes everyone
				continue
			}
			plan[c-1] = o.dynamicWindow(rotation, c)
		}
		return plan, cycles, nil
	}
}

// dynamicWindow returns the participant subset for one dynamic cycle: a
// wrapping window of size min(DynamicWindowSize, n) starting at
// ((cycle-1)*DynamicWindowStep) mod n.
func (o *Orchestrator) dynamicWindow(rotation []string, cycle int) []string {
	n := len(rotation)
	size := o.cfg.DynamicWindowSize
	if size > n {
		size = n
	}
	start := ((cycle - 1) * o.cfg.DynamicWindowStep) % n
	window := make([]string, 0, size)
	for i := 0; i < size; i++ {
		window = append(window, rotation[(start+i)%n])
	}
	return window
}

// execute drives the run to a terminal state. Runs on its own goroutine and
// deliberately uses a background context: the run outlives the request that
// started it, and stopping is the run handle's job.
func (o *Orchestrator) execute(run *Run, task *Task, base string, rotation []string, personalities map[string]types.Personality, plan [][]string, synthesis bool) {
	ctx := context.Background()
	started := o.now()
	task.start(started)

	limiter := rate.NewLimiter(rate.Every(o.cfg.InterTurnDelay), 1)
	framingTotal := len(plan)
	if synthesis {
		framingTotal++
	}

	status := TaskCompleted
	runErr := o.runCycles(ctx, run, task, base, personalities, plan, framingTotal, limiter)
	switch {
	case runErr == nil && run.cancelled():
		status = TaskCancelled
	case runErr != nil:
		status = TaskFailed
	default:
		if synthesis {
			runErr = o.synthesisTurn(ctx, run, task, base, rotation, personalities, framingTotal, limiter)
			if runErr != nil {
				status = TaskFailed
			} else if run.cancelled() {
				status = TaskCancelled
			}
		}
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	task.finish(status, errMsg, o.now())

	o.mu.Lock()
	delete(o.active, run.ConversationID)
	o.mu.Unlock()
	close(run.doneCh)

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordRun(string(run.Mode), string(status), o.now().Sub(started))
	}
	o.logger.Info("run finished",
		zap.String("task_id", task.ID),
		zap.String("status", string(status)),
		zap.Int("responses", len(task.priorResponses())),
		zap.Error(runErr))
}

// runCycles executes the regular cycles. For infinite runs it generates
// full-rotation cycles until cancelled.
func (o *Orchestrator) runCycles(ctx context.Context, run *Run, task *Task, base string, personalities map[string]types.Personality, plan [][]string, framingTotal int, limiter *rate.Limiter) error {
	cycle := 0
	for {
		cycle++
		var participants []string
		if plan == nil {
			participants = task.RequiredPersonalities
		} else {
			if cycle > len(plan) {
				return nil
			}
			participants = plan[cycle-1]
		}

		spoken := make(map[string]struct{}, len(participants))
		for range participants {
			run.gate()
			if run.cancelled() {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return err
			}

			history, err := o.deps.Conversations.History(ctx, run.ConversationID)
			if err != nil {
				return mapStoreErr(err, "conversation", run.ConversationID)
			}
			speakerID, err := SelectNext(history, participants)
			if err != nil {
				return err
			}
			spoken[speakerID] = struct{}{}

			remaining := make([]string, 0, len(participants))
			for _, id := range participants {
				if _, done := spoken[id]; !done {
					remaining = append(remaining, id)
				}
			}

			if err := o.turn(ctx, run, task, base, personalities[speakerID], history, cycle, framingTotal, remaining, false); err != nil {
				return err
			}
		}
	}
}

// turn composes, generates, appends and scores a single response. The
// generation is never interrupted by cancellation; the caller checks the
// cancel signal before entering.
func (o *Orchestrator) turn(ctx context.Context, run *Run, task *Task, base string, speaker types.Personality, history []types.Message, cycle, framingTotal int, remaining []string, isSynthesis bool) error {
	prompt := o.deps.Composer.Compose(base, cycle, framingTotal, task.priorResponses(), speaker, remaining)

	result, err := o.deps.Generator.Generate(ctx, speaker, prompt, history)
	if err != nil {
		o.logger.Error("generation failed",
			zap.String("task_id", task.ID),
			zap.String("personality", speaker.NameID),
			zap.Int("cycle", cycle),
			zap.Error(err))
		return err
	}

	metadata := map[string]string{
		"task_id": task.ID,
		"cycle":   strconv.Itoa(cycle),
	}
	if isSynthesis {
		metadata["synthesis"] = "true"
	}
	// The append must be durable before the next prompt is composed; the
	// next turn reads this message back from the history.
	if _, err := o.deps.Conversations.Append(ctx, run.ConversationID, speaker.NameID, result.Content, metadata); err != nil {
		return mapStoreErr(err, "conversation", run.ConversationID)
	}

	response := Response{
		Personality:    speaker.NameID,
		Content:        result.Content,
		Cycle:          cycle,
		TokensUsed:     result.TokensUsed,
		ProcessingTime: result.ProcessingTime,
		Provider:       result.Provider,
		CreatedAt:      o.now(),
	}
	quality := o.deps.Assessor.Assess(response, task.priorResponses())
	response.Quality = &quality
	task.addResponse(response, o.now())

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordTurn(speaker.NameID, result.Provider, result.ProcessingTime, result.TokensUsed)
		o.deps.Metrics.RecordQuality(speaker.NameID, quality.OverallQuality)
	}
	o.logger.Debug("turn completed",
		zap.String("task_id", task.ID),
		zap.String("personality", speaker.NameID),
		zap.Int("cycle", cycle),
		zap.Int("quality", quality.OverallQuality))
	return nil
}

// synthesisTurn appends the mandatory closing turn after the last regular
// cycle, spoken by the designated synthesizer or the first participant.
func (o *Orchestrator) synthesisTurn(ctx context.Context, run *Run, task *Task, base string, rotation []string, personalities map[string]types.Personality, framingTotal int, limiter *rate.Limiter) error {
	run.gate()
	if run.cancelled() {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	speakerID := o.deps.Composer.SynthesisSpeaker(rotation)
	history, err := o.deps.Conversations.History(ctx, run.ConversationID)
	if err != nil {
		return mapStoreErr(err, "conversation", run.ConversationID)
	}
	return o.turn(ctx, run, task, base, personalities[speakerID], history, framingTotal, framingTotal, nil, true)
}

// Summon executes a single out-of-rotation turn for an observer personality,
// triggered by a user message that explicitly calls on it. Rejected while the
// conversation has an active run.
func (o *Orchestrator) Summon(ctx context.Context, conversationID, observerID, triggerMessage string) (*types.Message, error) {
	if !o.deps.Registry.IsObserver(observerID) {
		return nil, types.NewErrorf(types.ErrValidation, "personality %s is not an observer", observerID)
	}
	if !o.deps.Registry.IsSummoned(triggerMessage, observerID) {
		return nil, types.NewErrorf(types.ErrValidation, "message does not summon %s", observerID)
	}

	// Hold the conversation's run slot for the duration of the summon so a
	// concurrent StartRun cannot interleave its turns with the observer's.
	run := newRun(uuid.NewString(), conversationID, ModeFinite)
	o.mu.Lock()
	if _, busy := o.active[conversationID]; busy {
		o.mu.Unlock()
		return nil, types.NewErrorf(types.ErrConflict, "conversation %s has an active run", conversationID)
	}
	o.active[conversationID] = run
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, conversationID)
		o.mu.Unlock()
		close(run.doneCh)
	}()

	conv, err := o.deps.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr(err, "conversation", conversationID)
	}
	personality, err := o.deps.Personalities.GetPersonality(ctx, observerID)
	if err != nil {
		return nil, mapStoreErr(err, "personality", observerID)
	}
	history, err := o.deps.Conversations.History(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr(err, "conversation", conversationID)
	}

	prompt := triggerMessage
	if conv.Instructions != "" {
		prompt = conv.Instructions + "\n\n" + triggerMessage
	}
	prompt += fmt.Sprintf("\n\nYou have been called into this conversation as %s. Respond once, directly, in your own voice.", personality.DisplayName)

	result, err := o.deps.Generator.Generate(ctx, personality, prompt, history)
	if err != nil {
		return nil, err
	}
	msg, err := o.deps.Conversations.Append(ctx, conversationID, observerID, result.Content, map[string]string{"summoned": "true"})
	if err != nil {
		return nil, mapStoreErr(err, "conversation", conversationID)
	}
	o.logger.Info("observer summoned",
		zap.String("conversation_id", conversationID),
		zap.String("observer", observerID))
	return msg, nil
}

// GetTask returns a snapshot of a task's progress and responses.
func (o *Orchestrator) GetTask(taskID string) (TaskSnapshot, error) {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return TaskSnapshot{}, types.NewErrorf(types.ErrNotFound, "task %s not found", taskID)
	}
	return task.Snapshot(), nil
}

// ActiveRun returns the conversation's active run handle, if any.
func (o *Orchestrator) ActiveRun(conversationID string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.active[conversationID]
	return run, ok
}

// CancelRun cancels the conversation's active run.
func (o *Orchestrator) CancelRun(conversationID string) error {
	run, ok := o.ActiveRun(conversationID)
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "no active run for conversation %s", conversationID)
	}
	run.Cancel()
	return nil
}

// PauseRun pauses the conversation's active run before its next turn.
func (o *Orchestrator) PauseRun(conversationID string) error {
	run, ok := o.ActiveRun(conversationID)
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "no active run for conversation %s", conversationID)
	}
	return run.Pause()
}

// ResumeRun resumes the conversation's paused run.
func (o *Orchestrator) ResumeRun(conversationID string) error {
	run, ok := o.ActiveRun(conversationID)
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "no active run for conversation %s", conversationID)
	}
	run.Resume()
	return nil
}

func (o *Orchestrator) collectExpiredTasks() {
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			now := o.now()
			o.mu.Lock()
			for id, task := range o.tasks {
				if task.expired(now, o.cfg.TaskRetention) {
					delete(o.tasks, id)
				}
			}
			o.mu.Unlock()
		}
	}
}

// mapStoreErr translates store sentinels into the engine's error taxonomy.
func mapStoreErr(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return types.NewErrorf(types.ErrNotFound, "%s %s not found", kind, id).WithCause(err)
	}
	if types.GetErrorCode(err) != "" {
		return err
	}
	return types.NewErrorf(types.ErrInternal, "%s store failure", kind).WithCause(err)
}
