package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roundtable-ai/roundtable/types"
)

// SynthesisMarker is the fixed closing token the synthesis turn is instructed
// to end with. Downstream consumers detect run completion by its presence.
const SynthesisMarker = "[SYNTHESIS-COMPLETE]"

// Guidance is the per-personality role description used to steer prompts and
// to assign files during collaborative builds. Keyed by personality id in the
// composer's table; unknown ids fall back to the default entry.
type Guidance struct {
	// Text is appended to every composed prompt for this personality.
	Text string
	// FileTypes lists the file extensions (".go", ".sql", ...) this
	// personality is preferred for during collaborative builds.
	FileTypes []string
	// Synthesizer marks the personality as preferred for the synthesis turn.
	Synthesizer bool
}

var defaultGuidance = Guidance{
	Text: "Contribute concrete, actionable detail.",
}

var sentenceOpeners = []string{
	`"I agree with %s that ..."`,
	`"I disagree with %s because ..."`,
	`"Building on %s's point, ..."`,
}

// Composer builds the full prompt for each turn. It is stateless between
// calls; everything it needs arrives as arguments, so composition is
// deterministic and directly testable.
type Composer struct {
	guidance      map[string]Guidance
	previewLength int
}

// NewComposer creates a composer with the given guidance table. A nil table
// means every personality gets the default guidance. previewLength bounds the
// per-response previews embedded in synthesis and intermediate prompts.
func NewComposer(guidance map[string]Guidance, previewLength int) *Composer {
	if guidance == nil {
		guidance = map[string]Guidance{}
	}
	if previewLength <= 0 {
		previewLength = 300
	}
	return &Composer{guidance: guidance, previewLength: previewLength}
}

// GuidanceFor returns the guidance entry for the personality id, falling back
// to the default entry.
func (c *Composer) GuidanceFor(id string) Guidance {
	if g, ok := c.guidance[id]; ok {
		return g
	}
	return defaultGuidance
}

// SynthesisSpeaker picks the participant who delivers the synthesis turn: the
// first rotation member flagged as a synthesizer, else the first member.
func (c *Composer) SynthesisSpeaker(rotation []string) string {
	if len(rotation) == 0 {
		return ""
	}
	for _, id := range rotation {
		if c.GuidanceFor(id).Synthesizer {
			return id
		}
	}
	return rotation[0]
}

// AssigneeFor picks the rotation member whose guidance prefers the given file
// extension. Without a match, files fall round-robin onto the rotation by the
// given ordinal.
func (c *Composer) AssigneeFor(ext string, rotation []string, ordinal int) string {
	if len(rotation) == 0 {
		return ""
	}
	for _, id := range rotation {
		for _, ft := range c.GuidanceFor(id).FileTypes {
			if strings.EqualFold(ft, ext) {
				return id
			}
		}
	}
	return rotation[ordinal%len(rotation)]
}

// Compose builds the prompt for one turn.
//
// Three framings, checked in order: the opening round (cycle 1) asks for a
// complete first take with no cross-references; the final round of a
// multi-round run asks for synthesis over previews of every prior response,
// closed by SynthesisMarker; everything in between asks for direct
// engagement with what has been said, naming the participants still to
// speak. Guidance and anti-impersonation guardrails are appended to every
// branch.
func (c *Composer) Compose(base string, cycle, totalCycles int, prior []Response, speaker types.Personality, remaining []string) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	switch {
	case cycle <= 1:
		b.WriteString("This is the opening round. Give a complete, distinctive first take in your own voice. ")
		b.WriteString("Do not reference the other participants; they have not spoken yet.")

	case cycle >= totalCycles && totalCycles > 1:
		b.WriteString("This is the final synthesis round. Read every prior response below. ")
		b.WriteString("Identify the strongest contribution from each participant, resolve the contradictions between them, ")
		b.WriteString("and deliver one unified, actionable conclusion.\n\nPrior responses:\n")
		for i, r := range prior {
			fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, r.Personality, c.preview(r.Content))
		}
		fmt.Fprintf(&b, "\nEnd your response with the line: %s", SynthesisMarker)

	default:
		b.WriteString("Respond directly to what has been said so far. Open with one of: ")
		recent := "the previous speaker"
		if len(prior) > 0 {
			recent = prior[len(prior)-1].Personality
		}
		for i, tmpl := range sentenceOpeners {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, tmpl, recent)
		}
		b.WriteString(". Do not restate points already made; add something new.")
		if len(remaining) > 0 {
			fmt.Fprintf(&b, " Still to speak this round: %s. Leave them room to build on your contribution.",
				strings.Join(remaining, ", "))
		}
	}

	b.WriteString("\n\nGuidance: ")
	b.WriteString(c.GuidanceFor(speaker.NameID).Text)
	b.WriteString("\nRespond only as ")
	b.WriteString(speaker.DisplayName)
	b.WriteString(". Never write dialogue for the other participants or put words in their mouths. ")
	b.WriteString("Build on the prior dialogue with your own distinct contribution.")
	return b.String()
}

// preview truncates content to the configured preview length, rune-safe, with
// an ellipsis when cut.
func (c *Composer) preview(content string) string {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	if utf8.RuneCountInString(content) <= c.previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:c.previewLength]) + "..."
}
