package orchestrator

import (
	"github.com/roundtable-ai/roundtable/types"
)

// SelectNext returns the id of the next speaker: round-robin with memory.
//
// The participant list is the effective rotation set (already filtered and
// sorted by Registry.Rotation). The most recent AI-authored message in the
// history decides the position; the next participant in order speaks,
// wrapping after the last. If no AI message exists, or the last AI speaker
// was removed from the rotation, the first participant speaks.
//
// Pure and deterministic: no side effects, no I/O.
func SelectNext(history []types.Message, participants []string) (string, error) {
	if len(participants) == 0 {
		return "", types.NewError(types.ErrValidation, "participants cannot be empty")
	}

	lastSpeaker := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsAI() {
			lastSpeaker = history[i].SenderID
			break
		}
	}
	if lastSpeaker == "" {
		return participants[0], nil
	}

	for i, id := range participants {
		if id == lastSpeaker {
			return participants[(i+1)%len(participants)], nil
		}
	}

	// Last speaker was removed from the rotation mid-conversation.
	return participants[0], nil
}
