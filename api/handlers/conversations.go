package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

// ConversationHandler serves conversation CRUD and the message log.
type ConversationHandler struct {
	conversations store.ConversationStore
	engine        *orchestrator.Orchestrator
	registry      *orchestrator.Registry
	observers     []string
	logger        *zap.Logger
}

// NewConversationHandler creates the handler. observers lists the personality
// ids eligible for summoning on user messages.
func NewConversationHandler(conversations store.ConversationStore, engine *orchestrator.Orchestrator, registry *orchestrator.Registry, observers []string, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		engine:        engine,
		registry:      registry,
		observers:     observers,
		logger:        logger.With(zap.String("handler", "conversations")),
	}
}

type createConversationRequest struct {
	Title          string   `json:"title"`
	Instructions   string   `json:"instructions"`
	ParticipantIDs []string `json:"participant_ids"`
}

// Create handles POST /v1/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if req.Title == "" {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "title is required"))
		return
	}
	if len(h.registry.Rotation(req.ParticipantIDs)) == 0 {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "at least one non-observer participant is required"))
		return
	}

	conv := &types.Conversation{
		Title:          req.Title,
		Instructions:   req.Instructions,
		ParticipantIDs: req.ParticipantIDs,
		IsActive:       true,
	}
	if err := h.conversations.CreateConversation(r.Context(), conv); err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	WriteSuccess(w, http.StatusCreated, conv)
}

// List handles GET /v1/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.ListConversations(r.Context())
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	WriteSuccess(w, http.StatusOK, convs)
}

// Get handles GET /v1/conversations/{id}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	WriteSuccess(w, http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title          *string  `json:"title"`
	Instructions   *string  `json:"instructions"`
	ParticipantIDs []string `json:"participant_ids"`
	IsActive       *bool    `json:"is_active"`
}

// Update handles PATCH /v1/conversations/{id}. Edits are rejected while a run
// is active: participants and instructions must not change under an in-flight
// cycle.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, busy := h.engine.ActiveRun(id); busy {
		WriteError(w, h.logger, types.NewError(types.ErrConflict, "conversation has an active run"))
		return
	}

	var req updateConversationRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	conv, err := h.conversations.GetConversation(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Instructions != nil {
		conv.Instructions = *req.Instructions
	}
	if req.ParticipantIDs != nil {
		if len(h.registry.Rotation(req.ParticipantIDs)) == 0 {
			WriteError(w, h.logger, types.NewError(types.ErrValidation, "at least one non-observer participant is required"))
			return
		}
		conv.ParticipantIDs = req.ParticipantIDs
	}
	if req.IsActive != nil {
		conv.IsActive = *req.IsActive
	}

	if err := h.conversations.UpdateConversation(r.Context(), conv); err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	WriteSuccess(w, http.StatusOK, conv)
}

// Messages handles GET /v1/conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	history, err := h.conversations.History(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}
	WriteSuccess(w, http.StatusOK, history)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type postMessageResponse struct {
	Message *types.Message  `json:"message"`
	Replies []types.Message `json:"replies,omitempty"`
}

// PostMessage handles POST /v1/conversations/{id}/messages: appends a user
// message and executes a single turn for any observer it summons.
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req postMessageRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if req.Content == "" {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "content is required"))
		return
	}

	conv, err := h.conversations.GetConversation(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}

	msg, err := h.conversations.Append(r.Context(), id, types.SenderUser, req.Content, nil)
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "conversation"))
		return
	}

	resp := postMessageResponse{Message: msg}
	for _, observer := range h.observers {
		if !participantOf(conv, observer) || !h.registry.IsSummoned(req.Content, observer) {
			continue
		}
		reply, err := h.engine.Summon(r.Context(), id, observer, req.Content)
		if err != nil {
			// A failed summon does not fail the message append.
			h.logger.Warn("summon failed",
				zap.String("conversation_id", id),
				zap.String("observer", observer),
				zap.Error(err))
			continue
		}
		resp.Replies = append(resp.Replies, *reply)
	}
	WriteSuccess(w, http.StatusCreated, resp)
}

func participantOf(conv *types.Conversation, id string) bool {
	for _, p := range conv.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}
