// Package learnertest provides test doubles for the learner aggregate.
package learnertest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
)

// ErrStubExhausted is returned when a StubLookup is called more than once.
var ErrStubExhausted = errors.New("stub lookup already consumed")

// StubLookup is a LessonLookup programmed with a single response. A second call
// fails the test: scenarios that look a lesson up twice must program a new stub.
type StubLookup struct {
	t      testing.TB
	lesson learner.Lesson
	err    error

	mu    sync.Mutex
	calls []uuid.UUID
}

// NewStubLookup returns a stub that answers its first call with lesson and err.
func NewStubLookup(t testing.TB, lesson learner.Lesson, err error) *StubLookup {
	return &StubLookup{t: t, lesson: lesson, err: err}
}

// Returning programs a stub that returns lesson.
func Returning(t testing.TB, lesson learner.Lesson) *StubLookup {
	return NewStubLookup(t, lesson, nil)
}

// Failing programs a stub that fails with err.
func Failing(t testing.TB, err error) *StubLookup {
	return NewStubLookup(t, learner.Lesson{}, err)
}

// NotFound programs a stub that reports every lesson as unknown.
func NotFound(t testing.TB) *StubLookup {
	return Failing(t, learner.ErrNotFound)
}

// FindLesson implements learner.LessonLookup.
func (s *StubLookup) FindLesson(_ context.Context, id uuid.UUID) (learner.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, id)
	if len(s.calls) > 1 {
		s.t.Errorf("lesson lookup called %d times; the stub answers once", len(s.calls))
		return learner.Lesson{}, ErrStubExhausted
	}
	if s.err != nil {
		return learner.Lesson{}, s.err
	}
	return s.lesson.Clone(), nil
}

// Calls returns the lesson ids the stub was asked for.
func (s *StubLookup) Calls() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.calls...)
}
