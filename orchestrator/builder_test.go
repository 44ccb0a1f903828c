package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtable-ai/roundtable/gateway"
	"github.com/roundtable-ai/roundtable/types"
)

const testPlanJSON = `{"summary":"a tiny service","files":[` +
	`{"path":"main.go","description":"entry point"},` +
	`{"path":"README.md","description":"usage notes"}]}`

// buildGenerator answers the planning prompt with a plan and file prompts
// with per-extension content.
func buildGenerator() gateway.Generator {
	return gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		switch {
		case strings.Contains(prompt, "single JSON object"):
			return &gateway.Result{Content: "Here you go:\n" + testPlanJSON, Provider: "test"}, nil
		case strings.Contains(prompt, "File: main.go"):
			return &gateway.Result{Content: "```go\npackage main\n```", Provider: "test"}, nil
		case strings.Contains(prompt, "File: README.md"):
			return &gateway.Result{Content: "# Tiny service", Provider: "test"}, nil
		default:
			return &gateway.Result{Content: "unexpected prompt", Provider: "test"}, nil
		}
	})
}

func TestOrchestrator_Build(t *testing.T) {
	t.Parallel()

	deps := Deps{Composer: NewComposer(map[string]Guidance{
		"gopher": {Text: "Go specialist.", FileTypes: []string{".go"}},
		"docsy":  {Text: "Docs specialist.", FileTypes: []string{".md"}},
	}, 300)}
	o, mem, convID := newTestEngine(t, buildGenerator(), []string{"gopher", "docsy"}, deps)

	result, err := o.Build(context.Background(), convID, "build a tiny service", "gopher")
	require.NoError(t, err)

	assert.Equal(t, "a tiny service", result.Summary)
	require.Len(t, result.Files, 2)

	// Files route to the personality whose guidance prefers the extension,
	// and fenced output is unwrapped.
	assert.Equal(t, "main.go", result.Files[0].Path)
	assert.Equal(t, "gopher", result.Files[0].Personality)
	assert.Equal(t, "package main", result.Files[0].Content)
	assert.Equal(t, "README.md", result.Files[1].Path)
	assert.Equal(t, "docsy", result.Files[1].Personality)
	assert.Equal(t, "# Tiny service", result.Files[1].Content)

	// Plan plus both files land in the conversation log, in order.
	history, _ := mem.History(context.Background(), convID)
	require.Len(t, history, 3)
	assert.Equal(t, "true", history[0].Metadata["build_plan"])
	assert.Equal(t, "main.go", history[1].Metadata["file"])
	assert.Equal(t, "README.md", history[2].Metadata["file"])

	task, err := o.GetTask(result.TaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.Equal(t, 3, task.TotalSteps)
	assert.Equal(t, 3, task.CurrentStep)
}

func TestOrchestrator_Build_MalformedPlan(t *testing.T) {
	t.Parallel()

	gen := gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		return &gateway.Result{Content: "I would rather describe the plan in prose.", Provider: "test"}, nil
	})
	o, mem, convID := newTestEngine(t, gen, []string{"alpha", "beta"}, Deps{})

	_, err := o.Build(context.Background(), convID, "build something", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedPlan, types.GetErrorCode(err))

	// A rejected plan appends nothing.
	history, _ := mem.History(context.Background(), convID)
	assert.Empty(t, history)
}

func TestOrchestrator_Build_ConflictWithActiveRun(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	gen := gateway.GeneratorFunc(func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*gateway.Result, error) {
		started <- struct{}{}
		<-release
		return &gateway.Result{Content: "ok", Provider: "test"}, nil
	})
	o, _, convID := newTestEngine(t, gen, []string{"alpha", "beta"}, Deps{})

	run, err := o.StartRun(context.Background(), convID, "topic", ModeInfinite, RunOptions{})
	require.NoError(t, err)
	<-started

	_, err = o.Build(context.Background(), convID, "build", "")
	assert.Equal(t, types.ErrConflict, types.GetErrorCode(err))

	run.Cancel()
	close(release)
	waitDone(t, run)
}
