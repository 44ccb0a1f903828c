package orchestrator

import (
	"sort"
	"strings"

	"github.com/roundtable-ai/roundtable/types"
)

// summonPhrases are the explicit-call templates that summon an observer, in
// addition to the @mention marker. %s is the observer's name id.
var summonPhrases = []string{
	"ask %s",
	"summon %s",
	"what does %s think",
	"bring in %s",
}

// Registry produces a conversation's effective rotation set: the raw
// participant ids minus silent observers, sorted ascending by id. Observers
// never join the rotation; they execute a single out-of-rotation turn when a
// user message explicitly summons them.
type Registry struct {
	observers map[string]struct{}
}

// NewRegistry creates a registry with the given observer-only personality ids.
func NewRegistry(observerIDs []string) *Registry {
	observers := make(map[string]struct{}, len(observerIDs))
	for _, id := range observerIDs {
		if id != "" {
			observers[id] = struct{}{}
		}
	}
	return &Registry{observers: observers}
}

// IsObserver reports whether the id is observer-only.
func (r *Registry) IsObserver(id string) bool {
	_, ok := r.observers[id]
	return ok
}

// Rotation returns the effective rotation set for the given raw participant
// ids: deduplicated, with the reserved user sender and all observers removed,
// sorted ascending by id.
func (r *Registry) Rotation(participantIDs []string) []string {
	seen := make(map[string]struct{}, len(participantIDs))
	result := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" || id == types.SenderUser {
			continue
		}
		if r.IsObserver(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// IsSummoned reports whether the message explicitly calls on the observer:
// a case-insensitive @mention of its id, or one of the explicit-call phrases.
func (r *Registry) IsSummoned(message, observerID string) bool {
	if observerID == "" {
		return false
	}
	msg := strings.ToLower(message)
	name := strings.ToLower(observerID)

	if strings.Contains(msg, "@"+name) {
		return true
	}
	for _, tmpl := range summonPhrases {
		phrase := strings.Replace(tmpl, "%s", name, 1)
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
