// Package engine defines the collaborator contracts the relay depends on:
// a mergeable document that reconciles concurrent updates, and a presence
// table that tracks ephemeral per-client state.
//
// The relay treats both as black boxes. The in-memory implementations in
// this package back the server binary and the tests; a room gets a fresh
// pair on creation and both are destroyed when the room empties.
package engine
