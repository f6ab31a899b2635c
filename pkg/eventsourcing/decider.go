package eventsourcing

import "context"

// Command is the minimum every command routed through the engine exposes.
type Command interface {
	// AggregateID returns the ID of the aggregate this command targets.
	AggregateID() string

	// CommandType returns the stable type name of the command.
	CommandType() string
}

// Decider bundles the functions that define an event-sourced aggregate.
//
// S is the folded state, C the command set, E the event set and P the capability
// port handed to Decide on every call. Decide must not keep state between calls and
// must return either a non-empty batch or an error. Evolve must be total and must
// return a new state value rather than mutating the one it receives.
type Decider[S any, C Command, E any, P any] struct {
	// AggregateType names the stream kind (e.g., "learner").
	AggregateType string

	// Initial returns the state of an aggregate with no history.
	Initial func() S

	// Decide maps a command against the current state to the events it produces.
	Decide func(ctx context.Context, state S, cmd C, port P) ([]E, error)

	// Evolve folds a single event into the state.
	Evolve func(state S, evt E) S
}

// Fold applies events to state in order.
func (d Decider[S, C, E, P]) Fold(state S, events ...E) S {
	for _, evt := range events {
		state = d.Evolve(state, evt)
	}
	return state
}

// Replay folds events starting from the initial state.
func (d Decider[S, C, E, P]) Replay(events ...E) S {
	return d.Fold(d.Initial(), events...)
}
