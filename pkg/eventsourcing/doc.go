// Package eventsourcing is the generic execution engine for event-sourced aggregates.
//
// An aggregate is described by a Decider: an initial state, a decision function
// mapping (state, command, port) to new events or an error, and an infallible
// evolve function folding one event into the state. The Engine drives a Decider
// against an event store: it replays the stored stream, decides, and appends the
// resulting batch with an expected-version check, so a command either commits its
// whole batch or nothing.
package eventsourcing
