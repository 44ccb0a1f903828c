package orchestrator

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/roundtable-ai/roundtable/types"
)

// PlannedFile is one file of a build plan.
type PlannedFile struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// BuildPlan is the structured output the planner personality must produce
// before a collaborative build starts.
type BuildPlan struct {
	Summary string        `json:"summary"`
	Files   []PlannedFile `json:"files"`
}

// DecodeBuildPlan extracts and validates a build plan from raw model output.
// Models wrap JSON in prose and code fences, so decoding starts at the first
// '{' and ends at the last '}'. Every failure is a MALFORMED_PLAN error
// carrying enough detail for the caller to surface.
func DecodeBuildPlan(raw string) (*BuildPlan, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, types.NewError(types.ErrMalformedPlan, "planner output contains no JSON object")
	}

	var plan BuildPlan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, types.NewError(types.ErrMalformedPlan, "planner output is not valid JSON").WithCause(err)
	}
	if len(plan.Files) == 0 {
		return nil, types.NewError(types.ErrMalformedPlan, "build plan lists no files")
	}

	seen := make(map[string]struct{}, len(plan.Files))
	for i, f := range plan.Files {
		if strings.TrimSpace(f.Path) == "" {
			return nil, types.NewErrorf(types.ErrMalformedPlan, "build plan file %d has an empty path", i)
		}
		if strings.TrimSpace(f.Description) == "" {
			return nil, types.NewErrorf(types.ErrMalformedPlan, "build plan file %q has no description", f.Path)
		}
		if _, dup := seen[f.Path]; dup {
			return nil, types.NewErrorf(types.ErrMalformedPlan, "build plan lists %q twice", f.Path)
		}
		seen[f.Path] = struct{}{}
	}
	return &plan, nil
}

// ext returns the lowercased extension of a planned path, "" when absent.
func (f PlannedFile) ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}
