// Package learner implements the learner aggregate: a learner's progress through
// lessons, reconstructed from its event history.
//
// Commands are decided against the folded state with Decide, which may consult a
// LessonLookup. Events are folded with Apply, which is pure and total. NewDecider
// bundles both for the generic engine in package eventsourcing.
package learner

const (
	// AggregateType is the stream kind of every learner envelope.
	AggregateType = "learner"

	// SchemaVersion is the payload schema version of every learner event.
	SchemaVersion = "1.0"
)
