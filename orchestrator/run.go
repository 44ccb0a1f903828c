package orchestrator

import (
	"sync"

	"github.com/roundtable-ai/roundtable/types"
)

// Run is the caller-facing handle for an active orchestration run. Cancel and
// Pause act cooperatively: the engine observes them between turns only, so an
// in-flight generation always completes and is appended before the run stops.
type Run struct {
	TaskID         string
	ConversationID string
	Mode           Mode

	cancelOnce sync.Once
	cancelCh   chan struct{}
	doneCh     chan struct{}

	pauseMu sync.Mutex
	pauseCh chan struct{} // non-nil while paused, closed on resume
}

func newRun(taskID, conversationID string, mode Mode) *Run {
	return &Run{
		TaskID:         taskID,
		ConversationID: conversationID,
		Mode:           mode,
		cancelCh:       make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Cancel signals the run to stop at the next iteration boundary. Safe to call
// multiple times and from any goroutine.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Done is closed when the run has reached a terminal state and its final
// task status is visible.
func (r *Run) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Run) cancelled() bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return false
	}
}

// Pause suspends the run before its next turn. Only manual modes support
// pausing; infinite runs can only be cancelled.
func (r *Run) Pause() error {
	if r.Mode == ModeInfinite {
		return types.NewError(types.ErrValidation, "infinite runs cannot be paused, only cancelled")
	}
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	if r.pauseCh == nil {
		r.pauseCh = make(chan struct{})
	}
	return nil
}

// Resume releases a paused run; the engine re-enters the loop at the same
// (cycle, participant) position. A no-op if the run is not paused.
func (r *Run) Resume() {
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	if r.pauseCh != nil {
		close(r.pauseCh)
		r.pauseCh = nil
	}
}

// Paused reports whether the run is currently gated.
func (r *Run) Paused() bool {
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	return r.pauseCh != nil
}

// gate blocks while the run is paused. Returns immediately when cancelled so
// a paused run can still be torn down.
func (r *Run) gate() {
	for {
		r.pauseMu.Lock()
		ch := r.pauseCh
		r.pauseMu.Unlock()
		if ch == nil {
			return
		}
		select {
		case <-ch:
		case <-r.cancelCh:
			return
		}
	}
}
