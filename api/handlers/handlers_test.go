package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/gateway"
	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *types.Error    `json:"error"`
}

func echoGenerator() gateway.Generator {
	return gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		return &gateway.Result{Content: p.NameID + " speaking", TokensUsed: 5, Provider: "test"}, nil
	})
}

func newTestServer(t *testing.T, gen gateway.Generator, personalities, observers []string) (*http.ServeMux, *store.MemoryStore) {
	t.Helper()

	mem := store.NewMemoryStore()
	ctx := context.Background()
	for _, id := range personalities {
		require.NoError(t, mem.SavePersonality(ctx, types.Personality{NameID: id, DisplayName: id, Provider: "test", Model: "m"}))
	}

	registry := orchestrator.NewRegistry(observers)
	engine := orchestrator.New(
		orchestrator.Config{InterTurnDelay: time.Millisecond, CleanupInterval: time.Hour},
		orchestrator.Deps{Conversations: mem, Personalities: mem, Generator: gen, Registry: registry},
		zap.NewNop(),
	)
	t.Cleanup(engine.Close)

	mux := NewMux(Deps{
		Conversations: mem,
		Personalities: mem,
		Engine:        engine,
		Registry:      registry,
		Observers:     observers,
		Logger:        zap.NewNop(),
	})
	return mux, mem
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

func createConversation(t *testing.T, mux *http.ServeMux, participants []string) string {
	t.Helper()
	rec, env := doJSON(t, mux, "POST", "/v1/conversations", map[string]any{
		"title":           "test",
		"participant_ids": participants,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var conv types.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	return conv.ID
}

func TestConversationLifecycle(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t, echoGenerator(), []string{"alpha", "beta"}, nil)
	convID := createConversation(t, mux, []string{"alpha", "beta"})

	rec, env := doJSON(t, mux, "GET", "/v1/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv types.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	assert.Equal(t, "test", conv.Title)
	assert.True(t, conv.IsActive)

	rec, _ = doJSON(t, mux, "PATCH", "/v1/conversations/"+convID, map[string]any{
		"instructions": "stay on topic",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = doJSON(t, mux, "GET", "/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestCreateConversation_Validation(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t, echoGenerator(), []string{"alpha"}, nil)

	rec, env := doJSON(t, mux, "POST", "/v1/conversations", map[string]any{"participant_ids": []string{"alpha"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, types.ErrValidation, env.Error.Code)

	rec, _ = doJSON(t, mux, "POST", "/v1/conversations", map[string]any{"title": "t"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversation_NotFound(t *testing.T) {
	t.Parallel()
	mux, _ := newTestServer(t, echoGenerator(), []string{"alpha"}, nil)
	rec, env := doJSON(t, mux, "GET", "/v1/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.ErrNotFound, env.Error.Code)
}

func TestPostMessage_SummonsObserver(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t, echoGenerator(), []string{"alpha", "oracle"}, []string{"oracle"})
	convID := createConversation(t, mux, []string{"alpha", "oracle"})

	rec, env := doJSON(t, mux, "POST", "/v1/conversations/"+convID+"/messages", map[string]any{
		"content": "@oracle what do you think?",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message types.Message   `json:"message"`
		Replies []types.Message `json:"replies"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, types.SenderUser, resp.Message.SenderID)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "oracle", resp.Replies[0].SenderID)

	// A plain message summons nobody.
	_, env = doJSON(t, mux, "POST", "/v1/conversations/"+convID+"/messages", map[string]any{
		"content": "carry on",
	})
	resp.Replies = nil // replies is omitempty; unmarshal won't clear the previous value
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Empty(t, resp.Replies)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	mux, mem := newTestServer(t, echoGenerator(), []string{"alpha", "beta"}, nil)
	convID := createConversation(t, mux, []string{"alpha", "beta"})

	rec, env := doJSON(t, mux, "POST", "/v1/runs", map[string]any{
		"conversation_id": convID,
		"prompt":          "debate",
		"mode":            "finite",
		"cycles":          1,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, "body: %s", rec.Body.String())

	var started struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	require.NotEmpty(t, started.TaskID)

	// Poll until the background run completes.
	deadline := time.Now().Add(5 * time.Second)
	var task orchestrator.TaskSnapshot
	for {
		rec, env = doJSON(t, mux, "GET", "/v1/tasks/"+started.TaskID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(env.Data, &task))
		if task.Status.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in status %s", task.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, orchestrator.TaskCompleted, task.Status)
	assert.Len(t, task.Responses, 2)

	history, err := mem.History(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRun_ValidationAndMissingTask(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t, echoGenerator(), []string{"alpha"}, nil)

	rec, _ := doJSON(t, mux, "POST", "/v1/runs", map[string]any{"prompt": "p", "mode": "finite"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := doJSON(t, mux, "GET", "/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.ErrNotFound, env.Error.Code)

	rec, _ = doJSON(t, mux, "POST", "/v1/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchRejectedWhileRunActive(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	gen := gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		started <- struct{}{}
		<-release
		return &gateway.Result{Content: "ok", Provider: "test"}, nil
	})
	mux, _ := newTestServer(t, gen, []string{"alpha", "beta"}, nil)
	convID := createConversation(t, mux, []string{"alpha", "beta"})

	rec, _ := doJSON(t, mux, "POST", "/v1/runs", map[string]any{
		"conversation_id": convID,
		"prompt":          "p",
		"mode":            "infinite",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started

	// Participant and instruction edits must not race an in-flight cycle.
	rec, env := doJSON(t, mux, "PATCH", "/v1/conversations/"+convID, map[string]any{"title": "new"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.ErrConflict, env.Error.Code)

	// A second run start is rejected the same way.
	rec, _ = doJSON(t, mux, "POST", "/v1/runs", map[string]any{
		"conversation_id": convID, "prompt": "p", "mode": "finite", "cycles": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = doJSON(t, mux, "POST", "/v1/runs/"+convID+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	close(release)
}

func TestPersonalityCRUD(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t, echoGenerator(), nil, nil)

	rec, _ := doJSON(t, mux, "POST", "/v1/personalities", types.Personality{
		NameID: "athena", DisplayName: "Athena", Provider: "test", Model: "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := doJSON(t, mux, "GET", "/v1/personalities/athena", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p types.Personality
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Athena", p.DisplayName)

	rec, env = doJSON(t, mux, "GET", "/v1/personalities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Personality
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	rec, _ = doJSON(t, mux, "DELETE", "/v1/personalities/athena", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, mux, "GET", "/v1/personalities/athena", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The reserved user sender is not a valid personality id.
	rec, _ = doJSON(t, mux, "POST", "/v1/personalities", types.Personality{NameID: types.SenderUser})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildEndpoint(t *testing.T) {
	t.Parallel()

	planJSON := `{"summary":"s","files":[{"path":"main.go","description":"entry"}]}`
	gen := gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		if bytes.Contains([]byte(prompt), []byte("single JSON object")) {
			return &gateway.Result{Content: planJSON, Provider: "test"}, nil
		}
		return &gateway.Result{Content: "package main", Provider: "test"}, nil
	})
	mux, _ := newTestServer(t, gen, []string{"alpha", "beta"}, nil)
	convID := createConversation(t, mux, []string{"alpha", "beta"})

	rec, env := doJSON(t, mux, "POST", "/v1/builds", map[string]any{
		"conversation_id": convID,
		"request":         "build a tiny tool",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var result orchestrator.BuildResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Files, 1)
	assert.Equal(t, "main.go", result.Files[0].Path)
	assert.Equal(t, "package main", result.Files[0].Content)
}

func TestBuildEndpoint_MalformedPlan(t *testing.T) {
	t.Parallel()

	gen := gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		return &gateway.Result{Content: "no structured plan today", Provider: "test"}, nil
	})
	mux, _ := newTestServer(t, gen, []string{"alpha", "beta"}, nil)
	convID := createConversation(t, mux, []string{"alpha", "beta"})

	rec, env := doJSON(t, mux, "POST", "/v1/builds", map[string]any{
		"conversation_id": convID,
		"request":         "build",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, types.ErrMalformedPlan, env.Error.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	mux, mem := newTestServer(t, echoGenerator(), nil, nil)

	rec, _ := doJSON(t, mux, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, mem.Close())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError_UntypedBecomesInternal(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, zap.NewNop(), fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, types.ErrInternal, env.Error.Code)
}
