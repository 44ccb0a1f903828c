package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/store"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Conversations store.ConversationStore
	Personalities store.PersonalityStore
	Engine        *orchestrator.Orchestrator
	Registry      *orchestrator.Registry
	Observers     []string
	Logger        *zap.Logger
}

// NewMux assembles the route table.
func NewMux(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Registry == nil {
		d.Registry = orchestrator.NewRegistry(d.Observers)
	}

	conversations := NewConversationHandler(d.Conversations, d.Engine, d.Registry, d.Observers, d.Logger)
	personalities := NewPersonalityHandler(d.Personalities, d.Logger)
	runs := NewRunHandler(d.Engine, d.Logger)
	health := NewHealthHandler(d.Logger, d.Conversations, d.Personalities)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/conversations", conversations.Create)
	mux.HandleFunc("GET /v1/conversations", conversations.List)
	mux.HandleFunc("GET /v1/conversations/{id}", conversations.Get)
	mux.HandleFunc("PATCH /v1/conversations/{id}", conversations.Update)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", conversations.Messages)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", conversations.PostMessage)

	mux.HandleFunc("POST /v1/personalities", personalities.Save)
	mux.HandleFunc("GET /v1/personalities", personalities.List)
	mux.HandleFunc("GET /v1/personalities/{id}", personalities.Get)
	mux.HandleFunc("DELETE /v1/personalities/{id}", personalities.Delete)

	mux.HandleFunc("POST /v1/runs", runs.Start)
	mux.HandleFunc("GET /v1/tasks/{id}", runs.Task)
	mux.HandleFunc("POST /v1/runs/{conversationID}/cancel", runs.Cancel)
	mux.HandleFunc("POST /v1/runs/{conversationID}/pause", runs.Pause)
	mux.HandleFunc("POST /v1/runs/{conversationID}/resume", runs.Resume)
	mux.HandleFunc("POST /v1/builds", runs.Build)

	mux.HandleFunc("GET /healthz", health.Health)

	return mux
}
