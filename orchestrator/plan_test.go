package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtable-ai/roundtable/types"
)

func TestDecodeBuildPlan(t *testing.T) {
	t.Parallel()

	t.Run("plain json", func(t *testing.T) {
		t.Parallel()
		plan, err := DecodeBuildPlan(`{"summary":"a tool","files":[{"path":"main.go","description":"entry point"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "a tool", plan.Summary)
		require.Len(t, plan.Files, 1)
		assert.Equal(t, "main.go", plan.Files[0].Path)
	})

	t.Run("json wrapped in prose and fences", func(t *testing.T) {
		t.Parallel()
		raw := "Here is the plan:\n```json\n" +
			`{"summary":"s","files":[{"path":"a.go","description":"d"},{"path":"b.md","description":"d2"}]}` +
			"\n```\nLet me know if it works."
		plan, err := DecodeBuildPlan(raw)
		require.NoError(t, err)
		assert.Len(t, plan.Files, 2)
	})

	tests := []struct {
		name string
		raw  string
	}{
		{"no json at all", "I cannot produce a plan right now."},
		{"invalid json", `{"summary": "broken`},
		{"no files", `{"summary":"s","files":[]}`},
		{"empty path", `{"files":[{"path":"  ","description":"d"}]}`},
		{"missing description", `{"files":[{"path":"a.go","description":""}]}`},
		{"duplicate paths", `{"files":[{"path":"a.go","description":"d"},{"path":"a.go","description":"d2"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeBuildPlan(tt.raw)
			require.Error(t, err)
			assert.Equal(t, types.ErrMalformedPlan, types.GetErrorCode(err))
		})
	}
}

func TestPlannedFile_Ext(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ".go", PlannedFile{Path: "cmd/Main.GO"}.ext())
	assert.Equal(t, "", PlannedFile{Path: "Makefile"}.ext())
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "package main\n", stripCodeFence("```go\npackage main\n\n```"))
	assert.Equal(t, "plain text", stripCodeFence("plain text"))
	assert.Equal(t, "```go\nunterminated", stripCodeFence("```go\nunterminated"))
}
