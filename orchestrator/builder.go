package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/types"
)

// GeneratedFile is one produced file of a collaborative build.
type GeneratedFile struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Content     string `json:"content"`
}

// BuildResult is the outcome of a collaborative build.
type BuildResult struct {
	TaskID  string          `json:"task_id"`
	Summary string          `json:"summary"`
	Files   []GeneratedFile `json:"files"`
}

// Build runs a collaborative code-generation task: the planner personality
// produces a structured file plan, each planned file is assigned to the
// rotation member whose guidance prefers its extension (round-robin
// otherwise), and files are generated strictly sequentially so later files
// can reference earlier ones through the conversation history.
//
// The same exclusivity rule as turn runs applies: one active run per
// conversation. Plan failures surface as MALFORMED_PLAN; any generation
// failure aborts the build with the partial output preserved in the task.
func (o *Orchestrator) Build(ctx context.Context, conversationID, request, plannerID string) (*BuildResult, error) {
	conv, err := o.deps.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr(err, "conversation", conversationID)
	}
	rotation := o.deps.Registry.Rotation(conv.ParticipantIDs)
	if len(rotation) == 0 {
		return nil, types.NewError(types.ErrValidation, "conversation has no eligible participants")
	}
	if plannerID == "" {
		plannerID = rotation[0]
	}
	planner, err := o.deps.Personalities.GetPersonality(ctx, plannerID)
	if err != nil {
		return nil, mapStoreErr(err, "personality", plannerID)
	}

	personalities := make(map[string]types.Personality, len(rotation))
	for _, id := range rotation {
		p, err := o.deps.Personalities.GetPersonality(ctx, id)
		if err != nil {
			return nil, mapStoreErr(err, "personality", id)
		}
		personalities[id] = p
	}

	now := o.now()
	task := &Task{
		ID:                    uuid.NewString(),
		ConversationID:        conversationID,
		Mode:                  ModeFinite,
		RequiredPersonalities: rotation,
		Status:                TaskPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	run := newRun(task.ID, conversationID, ModeFinite)

	o.mu.Lock()
	if _, busy := o.active[conversationID]; busy {
		o.mu.Unlock()
		return nil, types.NewErrorf(types.ErrConflict, "conversation %s already has an active run", conversationID)
	}
	o.active[conversationID] = run
	o.tasks[task.ID] = task
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.active, conversationID)
		o.mu.Unlock()
		close(run.doneCh)
	}()

	task.start(o.now())
	result, err := o.build(ctx, task, conv.Instructions, request, planner, rotation, personalities)
	if err != nil {
		task.finish(TaskFailed, err.Error(), o.now())
		return nil, err
	}
	task.finish(TaskCompleted, "", o.now())
	return result, nil
}

func (o *Orchestrator) build(ctx context.Context, task *Task, instructions, request string, planner types.Personality, rotation []string, personalities map[string]types.Personality) (*BuildResult, error) {
	history, err := o.deps.Conversations.History(ctx, task.ConversationID)
	if err != nil {
		return nil, mapStoreErr(err, "conversation", task.ConversationID)
	}

	planPrompt := o.composePlanPrompt(instructions, request)
	planned, err := o.deps.Generator.Generate(ctx, planner, planPrompt, history)
	if err != nil {
		return nil, err
	}
	plan, err := DecodeBuildPlan(planned.Content)
	if err != nil {
		o.logger.Warn("build plan rejected",
			zap.String("task_id", task.ID),
			zap.String("planner", planner.NameID),
			zap.Error(err))
		return nil, err
	}

	task.mu.Lock()
	task.TotalSteps = 1 + len(plan.Files)
	task.CurrentStep = 1
	task.mu.Unlock()

	if _, err := o.deps.Conversations.Append(ctx, task.ConversationID, planner.NameID, planned.Content, map[string]string{"task_id": task.ID, "build_plan": "true"}); err != nil {
		return nil, mapStoreErr(err, "conversation", task.ConversationID)
	}

	result := &BuildResult{TaskID: task.ID, Summary: plan.Summary}
	for i, file := range plan.Files {
		assignee := o.deps.Composer.AssigneeFor(file.ext(), rotation, i)
		speaker := personalities[assignee]

		history, err := o.deps.Conversations.History(ctx, task.ConversationID)
		if err != nil {
			return nil, mapStoreErr(err, "conversation", task.ConversationID)
		}
		prompt := o.composeFilePrompt(instructions, plan, file, speaker)
		generated, err := o.deps.Generator.Generate(ctx, speaker, prompt, history)
		if err != nil {
			return nil, err
		}
		if _, err := o.deps.Conversations.Append(ctx, task.ConversationID, assignee, generated.Content, map[string]string{"task_id": task.ID, "file": file.Path}); err != nil {
			return nil, mapStoreErr(err, "conversation", task.ConversationID)
		}

		task.addResponse(Response{
			Personality:    assignee,
			Content:        generated.Content,
			Cycle:          1,
			TokensUsed:     generated.TokensUsed,
			ProcessingTime: generated.ProcessingTime,
			Provider:       generated.Provider,
			CreatedAt:      o.now(),
		}, o.now())
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordTurn(assignee, generated.Provider, generated.ProcessingTime, generated.TokensUsed)
		}

		result.Files = append(result.Files, GeneratedFile{
			Path:        file.Path,
			Description: file.Description,
			Personality: assignee,
			Content:     stripCodeFence(generated.Content),
		})
	}
	return result, nil
}

func (o *Orchestrator) composePlanPrompt(instructions, request string) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Plan the implementation of the following request as a set of files.\n\nRequest: ")
	b.WriteString(request)
	b.WriteString("\n\nRespond with a single JSON object and nothing else, in this shape:\n")
	b.WriteString(`{"summary": "<one-line summary>", "files": [{"path": "<relative path>", "description": "<what the file contains>"}]}`)
	b.WriteString("\nList files in dependency order: foundations first, entry points last.")
	return b.String()
}

func (o *Orchestrator) composeFilePrompt(instructions string, plan *BuildPlan, file PlannedFile, speaker types.Personality) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "You are generating one file of a multi-file build: %s\n", plan.Summary)
	fmt.Fprintf(&b, "File: %s\nPurpose: %s\n\n", file.Path, file.Description)
	b.WriteString("The conversation history contains the plan and the files generated so far; stay consistent with them. ")
	b.WriteString("Respond with the complete file content only, no commentary.")
	b.WriteString("\n\nGuidance: ")
	b.WriteString(o.deps.Composer.GuidanceFor(speaker.NameID).Text)
	return b.String()
}

// stripCodeFence unwraps a response that is a single fenced code block.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return content
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
