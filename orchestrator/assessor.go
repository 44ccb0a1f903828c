package orchestrator

import (
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/types"
)

// collaborationPhrases is the fixed explicit-engagement vocabulary: agreement,
// contrast and build-on markers. Each occurrence is worth 2 points, capped at 10.
var collaborationPhrases = []string{
	"i agree",
	"i disagree",
	"agree with",
	"building on",
	"build on",
	"as mentioned",
	"good point",
	"however",
	"on the other hand",
	"in contrast",
	"adding to",
	"you're right",
}

// synthesisPhrases is the fixed conclusion vocabulary, 2 points per occurrence.
var synthesisPhrases = []string{
	"in summary",
	"to summarize",
	"in conclusion",
	"to conclude",
	"overall",
	"combining",
	"bringing together",
	"taken together",
	"unified",
}

// concretePattern matches digits and concrete-action words, a crude signal
// that a response commits to specifics rather than generalities.
var concretePattern = regexp.MustCompile(`[0-9]+|\b(implement|create|build|test|deploy|measure|define|design|propose|specific|step)\b`)

// Assessor scores a response against the prior responses of the same task
// along four deterministic heuristics. Scoring is advisory: any internal
// failure degrades to a neutral score and a log line, never an aborted run.
type Assessor struct {
	logger *zap.Logger
}

// NewAssessor creates an assessor. A nil logger falls back to a no-op logger.
func NewAssessor(logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{logger: logger.With(zap.String("component", "assessor"))}
}

// Assess scores current against the prior responses of the same task.
func (a *Assessor) Assess(current Response, prior []Response) (metrics types.QualityMetrics) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("quality assessment failed, using neutral score",
				zap.String("personality", current.Personality),
				zap.Any("panic", r))
			metrics = types.NeutralQuality()
		}
	}()

	content := strings.ToLower(current.Content)

	metrics.Repetitiveness = a.repetitiveness(content, prior)
	metrics.Collaboration = a.collaboration(content, prior)
	metrics.Synthesis = a.synthesis(content, prior)
	metrics.Originality = a.originality(current.Content)
	metrics.OverallQuality = int(math.Round(
		float64(metrics.Repetitiveness)*0.3 +
			float64(metrics.Collaboration)*0.3 +
			float64(metrics.Synthesis)*0.2 +
			float64(metrics.Originality)*0.2))
	return metrics
}

// repetitiveness scores 10 for fully original content and 0 for full overlap:
// average, over all priors, of the fraction of current's tokens that the
// prior also contains, then round((1-avg)*10).
func (a *Assessor) repetitiveness(content string, prior []Response) int {
	if len(prior) == 0 {
		return 10
	}
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return 10
	}

	var totalOverlap float64
	for _, p := range prior {
		priorSet := make(map[string]struct{})
		for _, t := range tokenize(strings.ToLower(p.Content)) {
			priorSet[t] = struct{}{}
		}
		shared := 0
		for _, t := range tokens {
			if _, ok := priorSet[t]; ok {
				shared++
			}
		}
		totalOverlap += float64(shared) / float64(len(tokens))
	}
	avg := totalOverlap / float64(len(prior))
	score := int(math.Round((1 - avg) * 10))
	if score < 0 {
		score = 0
	}
	return score
}

func (a *Assessor) collaboration(content string, prior []Response) int {
	if len(prior) == 0 {
		return 0
	}
	matches := 0
	for _, phrase := range collaborationPhrases {
		matches += strings.Count(content, phrase)
	}
	return min(10, matches*2)
}

func (a *Assessor) synthesis(content string, prior []Response) int {
	score := 0
	for _, phrase := range synthesisPhrases {
		score += 2 * strings.Count(content, phrase)
	}
	// Crude quotation detection: the opening of a prior response repeated
	// verbatim counts as a reference to it.
	for _, p := range prior {
		opening := strings.ToLower(strings.TrimSpace(p.Content))
		if len(opening) > 20 {
			opening = opening[:20]
		}
		if opening != "" && strings.Contains(content, opening) {
			score += 2
		}
	}
	return min(10, score)
}

func (a *Assessor) originality(content string) int {
	lengthScore := int(math.Round(float64(len(content)) / 200))
	if lengthScore > 5 {
		lengthScore = 5
	}
	concreteScore := min(5, len(concretePattern.FindAllString(strings.ToLower(content), -1)))
	return lengthScore + concreteScore
}

// tokenize splits lowercased content into word tokens longer than 3 runes.
func tokenize(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 3 {
			tokens = append(tokens, strings.ToLower(f))
		}
	}
	return tokens
}
