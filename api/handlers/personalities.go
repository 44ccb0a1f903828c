package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

// PersonalityHandler serves personality management. These are the operations
// outside the orchestration core: personalities are immutable during runs.
type PersonalityHandler struct {
	personalities store.PersonalityStore
	logger        *zap.Logger
}

// NewPersonalityHandler creates the handler.
func NewPersonalityHandler(personalities store.PersonalityStore, logger *zap.Logger) *PersonalityHandler {
	return &PersonalityHandler{
		personalities: personalities,
		logger:        logger.With(zap.String("handler", "personalities")),
	}
}

// Save handles POST /v1/personalities (create or replace).
func (h *PersonalityHandler) Save(w http.ResponseWriter, r *http.Request) {
	var p types.Personality
	if err := decode(r, &p); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if !p.Valid() {
		WriteError(w, h.logger, types.NewError(types.ErrValidation, "name_id is required and must not be the reserved user sender"))
		return
	}
	if err := h.personalities.SavePersonality(r.Context(), p); err != nil {
		WriteError(w, h.logger, storeErr(err, "personality"))
		return
	}
	WriteSuccess(w, http.StatusCreated, p)
}

// List handles GET /v1/personalities.
func (h *PersonalityHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.personalities.ListPersonalities(r.Context())
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "personality"))
		return
	}
	WriteSuccess(w, http.StatusOK, list)
}

// Get handles GET /v1/personalities/{id}.
func (h *PersonalityHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.personalities.GetPersonality(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, storeErr(err, "personality"))
		return
	}
	WriteSuccess(w, http.StatusOK, p)
}

// Delete handles DELETE /v1/personalities/{id}.
func (h *PersonalityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.personalities.DeletePersonality(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, h.logger, storeErr(err, "personality"))
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}
