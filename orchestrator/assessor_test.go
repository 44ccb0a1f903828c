package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// The assessor is deterministic, so these tests pin exact scores for fixed
// inputs rather than accepting ranges.

func respond(personality, content string) Response {
	return Response{Personality: personality, Content: content}
}

func TestAssessor_Repetitiveness(t *testing.T) {
	t.Parallel()

	a := NewAssessor(zap.NewNop())

	t.Run("no priors scores 10", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 10, a.repetitiveness("anything at all", nil))
	})

	t.Run("zero overlap scores 10", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "alpha bravo charlie delta")}
		assert.Equal(t, 10, a.repetitiveness("echo foxtrot golfing hotels", prior))
	})

	t.Run("half overlap scores 5", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "alpha bravo charlie delta")}
		// Tokens: alpha, bravo, echoes, foxtrot; two of four in the prior.
		assert.Equal(t, 5, a.repetitiveness("alpha bravo echoes foxtrot", prior))
	})

	t.Run("full overlap scores 0", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "alpha bravo charlie delta")}
		assert.Equal(t, 0, a.repetitiveness("alpha bravo charlie delta", prior))
	})

	t.Run("averaged across priors", func(t *testing.T) {
		t.Parallel()
		prior := []Response{
			respond("a", "alpha bravo charlie delta"),
			respond("b", "wholly unrelated words here"),
		}
		// Overlap 1.0 with the first prior, 0.0 with the second: avg 0.5.
		assert.Equal(t, 5, a.repetitiveness("alpha bravo charlie delta", prior))
	})
}

func TestAssessor_Collaboration(t *testing.T) {
	t.Parallel()

	a := NewAssessor(zap.NewNop())

	t.Run("no priors scores 0", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0, a.collaboration("i agree with everyone", nil))
	})

	t.Run("two points per phrase match", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "x")}
		// Matches: "i agree", "agree with", "however" = 3 phrases, 6 points.
		content := "i agree with your framing, however the tradeoffs differ"
		assert.Equal(t, 6, a.collaboration(content, prior))
	})

	t.Run("capped at 10", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "x")}
		content := strings.Repeat("i agree with that. however, ", 5)
		assert.Equal(t, 10, a.collaboration(content, prior))
	})

	t.Run("no engagement scores 0", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "x")}
		assert.Equal(t, 0, a.collaboration("purely independent statement", prior))
	})
}

func TestAssessor_Synthesis(t *testing.T) {
	t.Parallel()

	a := NewAssessor(zap.NewNop())

	t.Run("conclusion phrase and quotation", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "The fundamental approach here is sound")}
		// "in summary" scores 2; quoting the prior's opening scores 2 more.
		content := "in summary, the fundamental approach here is sound and worth extending"
		assert.Equal(t, 4, a.synthesis(content, prior))
	})

	t.Run("no synthesis signals scores 0", func(t *testing.T) {
		t.Parallel()
		prior := []Response{respond("a", "The fundamental approach here is sound")}
		assert.Equal(t, 0, a.synthesis("something else entirely", prior))
	})

	t.Run("capped at 10", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("in summary, to conclude, overall: ", 3)
		assert.Equal(t, 10, a.synthesis(content, nil))
	})
}

func TestAssessor_Originality(t *testing.T) {
	t.Parallel()

	a := NewAssessor(zap.NewNop())

	t.Run("concrete detail", func(t *testing.T) {
		t.Parallel()
		// Length 47 rounds to 0; concrete matches: implement, 3, test, design.
		assert.Equal(t, 4, a.originality("We should implement 3 steps and test the design"))
	})

	t.Run("length only", func(t *testing.T) {
		t.Parallel()
		// 500 chars rounds to 3; no concrete matches.
		assert.Equal(t, 3, a.originality(strings.Repeat("word ", 100)))
	})

	t.Run("both components capped at 5", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("implement 1 measure 2 deploy 3 ", 80)
		assert.Equal(t, 10, a.originality(content))
	})
}

func TestAssessor_Assess_Overall(t *testing.T) {
	t.Parallel()

	a := NewAssessor(zap.NewNop())
	prior := []Response{respond("alpha", "alpha bravo charlie delta")}
	got := a.Assess(respond("beta", "echo foxtrot golfing hotels"), prior)

	// repetitiveness 10, everything else 0: overall round(10*0.3) = 3.
	assert.Equal(t, 10, got.Repetitiveness)
	assert.Equal(t, 0, got.Collaboration)
	assert.Equal(t, 0, got.Synthesis)
	assert.Equal(t, 0, got.Originality)
	assert.Equal(t, 3, got.OverallQuality)
}
