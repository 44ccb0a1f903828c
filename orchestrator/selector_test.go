package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roundtable-ai/roundtable/types"
)

func msg(sender, content string) types.Message {
	return types.Message{SenderID: sender, Content: content}
}

func TestSelectNext(t *testing.T) {
	t.Parallel()

	participants := []string{"alpha", "beta", "gamma"}

	tests := []struct {
		name    string
		history []types.Message
		want    string
	}{
		{"empty history", nil, "alpha"},
		{"only user messages", []types.Message{msg(types.SenderUser, "hi")}, "alpha"},
		{"after first", []types.Message{msg("alpha", "a")}, "beta"},
		{"after middle", []types.Message{msg("beta", "b")}, "gamma"},
		{"wraps after last", []types.Message{msg("gamma", "c")}, "alpha"},
		{
			"user message after AI does not reset position",
			[]types.Message{msg("beta", "b"), msg(types.SenderUser, "go on")},
			"gamma",
		},
		{
			"most recent AI speaker wins",
			[]types.Message{msg("alpha", "a"), msg("beta", "b"), msg("alpha", "a2")},
			"beta",
		},
		{"removed speaker falls back to first", []types.Message{msg("omega", "gone")}, "alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectNext(tt.history, participants)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectNext_EmptyParticipants(t *testing.T) {
	t.Parallel()
	_, err := SelectNext(nil, nil)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestSelectNext_RoundRobinProperty(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 12).Draw(t, "n")
		participants := make([]string, n)
		for i := range participants {
			participants[i] = fmt.Sprintf("p%02d", i)
		}
		i := rapid.IntRange(0, n-1).Draw(t, "last")

		history := []types.Message{
			msg(types.SenderUser, "topic"),
			msg(participants[i], "spoke"),
		}
		next, err := SelectNext(history, participants)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := participants[(i+1)%n]; next != want {
			t.Fatalf("got %s, want %s", next, want)
		}
	})
}

func TestSelectNext_WrapInvariant(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		participants := make([]string, n)
		for i := range participants {
			participants[i] = fmt.Sprintf("p%02d", i)
		}

		// One full cycle of selections, each followed by an append, visits
		// every participant exactly once.
		var history []types.Message
		seen := make(map[string]int, n)
		for range participants {
			next, err := SelectNext(history, participants)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			seen[next]++
			history = append(history, msg(next, "turn"))
		}
		for _, id := range participants {
			if seen[id] != 1 {
				t.Fatalf("participant %s spoke %d times in one cycle", id, seen[id])
			}
		}
	})
}
