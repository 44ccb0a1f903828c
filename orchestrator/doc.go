// Package orchestrator implements the multi-agent turn-orchestration engine:
// who speaks next, what prompt they receive, how many rounds run, how cycles
// terminate, and how the resulting exchanges are scored for quality.
//
// The engine guarantees at most one active run per conversation, a strictly
// sequential turn loop within a run (each prompt depends on the full prior
// history including the previous turn's output), and iteration-boundary
// cancellation: an in-flight generation always completes and is appended
// before a cancelled run stops.
package orchestrator
