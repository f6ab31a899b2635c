// Package estest provides a given/when/then harness for deciders.
//
// A scenario folds the given history into state, runs a single decision against
// it and lets the test assert on the emitted events or the returned error. No
// store or bus is involved.
//
//	estest.With(learner.NewDecider(), lookup).
//		Given(learner.LearnerCreated{LearnerID: id, Name: "Ada"}).
//		When(learner.StartLesson{LearnerID: id, LessonID: lessonID}).
//		ThenExpectEvents(t, learner.LessonStarted{...})
package estest

import (
	"context"
	"testing"

	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario is the given half of a test case.
type Scenario[S any, C eventsourcing.Command, E any, P any] struct {
	decider eventsourcing.Decider[S, C, E, P]
	port    P
	history []E
}

// With starts a scenario for decider. port is handed to the single decision.
func With[S any, C eventsourcing.Command, E any, P any](decider eventsourcing.Decider[S, C, E, P], port P) *Scenario[S, C, E, P] {
	return &Scenario[S, C, E, P]{decider: decider, port: port}
}

// GivenNoPreviousEvents declares an empty history.
func (s *Scenario[S, C, E, P]) GivenNoPreviousEvents() *Scenario[S, C, E, P] {
	s.history = nil
	return s
}

// Given declares the prior history of the aggregate, oldest first.
func (s *Scenario[S, C, E, P]) Given(events ...E) *Scenario[S, C, E, P] {
	s.history = append([]E(nil), events...)
	return s
}

// State returns the state folded from the given history.
func (s *Scenario[S, C, E, P]) State() S {
	return s.decider.Replay(s.history...)
}

// ThenExpectState asserts the state folded from the given history.
func (s *Scenario[S, C, E, P]) ThenExpectState(t testing.TB, expected S) {
	t.Helper()
	assert.Equal(t, expected, s.State())
}

// When runs cmd against the folded history.
func (s *Scenario[S, C, E, P]) When(cmd C) *Result[S, E] {
	return s.WhenContext(context.Background(), cmd)
}

// WhenContext runs cmd with ctx against the folded history.
func (s *Scenario[S, C, E, P]) WhenContext(ctx context.Context, cmd C) *Result[S, E] {
	state := s.State()
	events, err := s.decider.Decide(ctx, state, cmd, s.port)
	return &Result[S, E]{
		state:  state,
		events: events,
		err:    err,
		fold:   func(st S) S { return s.decider.Fold(st, events...) },
	}
}

// Result is the then half of a test case.
type Result[S any, E any] struct {
	state  S
	events []E
	err    error
	fold   func(S) S
}

// Events returns the decided events.
func (r *Result[S, E]) Events() []E { return r.events }

// Err returns the decision error.
func (r *Result[S, E]) Err() error { return r.err }

// ThenExpectEvents asserts the decision succeeded with exactly expected, in order.
func (r *Result[S, E]) ThenExpectEvents(t testing.TB, expected ...E) *Result[S, E] {
	t.Helper()
	require.NoError(t, r.err)
	if len(expected) == 0 {
		assert.Empty(t, r.events)
		return r
	}
	assert.Equal(t, expected, r.events)
	return r
}

// ThenExpectError asserts the decision failed with an error matching target and emitted nothing.
func (r *Result[S, E]) ThenExpectError(t testing.TB, target error) *Result[S, E] {
	t.Helper()
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, target)
	assert.Empty(t, r.events)
	return r
}

// ThenExpectErrorMessage asserts the decision failed with exactly msg and emitted nothing.
func (r *Result[S, E]) ThenExpectErrorMessage(t testing.TB, msg string) *Result[S, E] {
	t.Helper()
	require.Error(t, r.err)
	assert.EqualError(t, r.err, msg)
	assert.Empty(t, r.events)
	return r
}

// ThenExpectStateAfter asserts the state obtained by folding the decided events
// onto the given history.
func (r *Result[S, E]) ThenExpectStateAfter(t testing.TB, expected S) *Result[S, E] {
	t.Helper()
	require.NoError(t, r.err)
	assert.Equal(t, expected, r.fold(r.state))
	return r
}
