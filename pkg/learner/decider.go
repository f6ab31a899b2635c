package learner

import (
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/store"
)

// Engine executes learner commands against an event store.
type Engine = eventsourcing.Engine[Learner, Command, Event, LessonLookup]

// NewDecider returns the learner aggregate as a generic decider.
func NewDecider() eventsourcing.Decider[Learner, Command, Event, LessonLookup] {
	return eventsourcing.Decider[Learner, Command, Event, LessonLookup]{
		AggregateType: AggregateType,
		Initial:       func() Learner { return Learner{} },
		Decide:        Decide,
		Evolve:        Apply,
	}
}

// NewEngine creates an engine for learner commands that resolves lessons through lookup.
func NewEngine(es store.EventStore, lookup LessonLookup, opts ...eventsourcing.EngineOption) *Engine {
	return eventsourcing.NewEngine(NewDecider(), eventsourcing.Codec[Event](Codec{}), es, lookup, opts...)
}

// Register routes every learner command type on bus to handler.
func Register(bus *eventsourcing.CommandBus, handler eventsourcing.CommandHandler) {
	for _, commandType := range CommandTypes() {
		bus.Register(commandType, handler)
	}
}
