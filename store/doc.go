// Package store provides the conversation and personality stores backing the
// orchestration engine.
//
// The conversation store is an append-only message log per conversation:
// messages are returned in insertion order and are never mutated or deleted
// by the orchestration core.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Redis: for distributed deployments
//   - GORM (sqlite/postgres/mysql): for SQL deployments
package store
