package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/types"
)

// RunHandler starts and controls orchestration runs and serves task status.
type RunHandler struct {
	engine *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewRunHandler creates the handler.
func NewRunHandler(engine *orchestrator.Orchestrator, logger *zap.Logger) *RunHandler {
	return &RunHandler{engine: engine, logger: logger.With(zap.String("handler", "runs"))}
}

type startRunRequest struct {
	ConversationID  string  `json:"conversation_id"`
	Prompt          string  `json:"prompt"`
	Mode            string  `json:"mode"`
	Cycles          int     `json:"cycles,omitempty"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
}

type startRunResponse struct {
	TaskID         string `json:"task_id"`
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
}

// Start handles POST /v1/runs. The run executes in the background; the
// response carries the task id for polling.
func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if req.ConversationID == "" {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "conversation_id is required"))
		return
	}
	if req.Prompt == "" {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "prompt is required"))
		return
	}

	run, err := h.engine.StartRun(r.Context(), req.ConversationID, req.Prompt,
		orchestrator.Mode(req.Mode), orchestrator.RunOptions{
			Cycles:   req.Cycles,
			Duration: time.Duration(req.DurationMinutes * float64(time.Minute)),
		})
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusAccepted, startRunResponse{
		TaskID:         run.TaskID,
		ConversationID: run.ConversationID,
		Mode:           string(run.Mode),
	})
}

// Task handles GET /v1/tasks/{id}.
func (h *RunHandler) Task(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.GetTask(r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, snapshot)
}

// Cancel handles POST /v1/runs/{conversationID}/cancel.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, h.engine.CancelRun)
}

// Pause handles POST /v1/runs/{conversationID}/pause.
func (h *RunHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, h.engine.PauseRun)
}

// Resume handles POST /v1/runs/{conversationID}/resume.
func (h *RunHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, h.engine.ResumeRun)
}

func (h *RunHandler) signal(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	if err := fn(r.PathValue("conversationID")); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusAccepted, nil)
}

type buildRequest struct {
	ConversationID string `json:"conversation_id"`
	Request        string `json:"request"`
	Planner        string `json:"planner,omitempty"`
}

// Build handles POST /v1/builds. Synchronous: the response carries the
// generated files.
func (h *RunHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if req.ConversationID == "" || req.Request == "" {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "conversation_id and request are required"))
		return
	}

	result, err := h.engine.Build(r.Context(), req.ConversationID, req.Request, req.Planner)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, result)
}
