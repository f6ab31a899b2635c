// Package progress maintains a per-learner progress read model from learner events.
package progress

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/projection"
	"github.com/shopspring/decimal"
)

// ProjectionName keys the progress checkpoint.
const ProjectionName = "learner-progress"

var hundred = decimal.NewFromInt(100)

// Learner is the read model of one learner.
type Learner struct {
	LearnerID uuid.UUID `json:"learner_id"`
	Name      string    `json:"name"`
	Lessons   []Lesson  `json:"lessons"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lesson tracks a learner's activity within one lesson.
type Lesson struct {
	LessonID     uuid.UUID                          `json:"lesson_id"`
	Name         string                             `json:"name"`
	Started      bool                               `json:"started"`
	TimesStarted int                                `json:"times_started"`
	StepCount    int                                `json:"step_count"`
	Bookmarks    map[learner.StepID]learner.Seconds `json:"bookmarks"`
	Completed    []learner.StepID                   `json:"completed"`
	Answered     []learner.StepID                   `json:"answered"`

	// Percent is the share of the lesson's steps completed or answered, 0 to 100.
	Percent decimal.Decimal `json:"percent"`

	steps []learner.Step
}

// Lesson returns the entry for lessonID.
func (l Learner) Lesson(lessonID uuid.UUID) (Lesson, bool) {
	for _, lesson := range l.Lessons {
		if lesson.LessonID == lessonID {
			return lesson, true
		}
	}
	return Lesson{}, false
}

func (l *Learner) lesson(lessonID uuid.UUID) *Lesson {
	for i := range l.Lessons {
		if l.Lessons[i].LessonID == lessonID {
			return &l.Lessons[i]
		}
	}
	l.Lessons = append(l.Lessons, Lesson{
		LessonID:  lessonID,
		Bookmarks: make(map[learner.StepID]learner.Seconds),
		Percent:   decimal.Zero,
	})
	return &l.Lessons[len(l.Lessons)-1]
}

func (l Learner) clone() Learner {
	c := l
	c.Lessons = make([]Lesson, len(l.Lessons))
	for i, lesson := range l.Lessons {
		lesson.Bookmarks = maps.Clone(lesson.Bookmarks)
		lesson.Completed = slices.Clone(lesson.Completed)
		lesson.Answered = slices.Clone(lesson.Answered)
		lesson.steps = slices.Clone(lesson.steps)
		c.Lessons[i] = lesson
	}
	return c
}

// recompute derives Percent from the lesson snapshot. Step ids that the
// snapshot does not contain, or that name a step of the other kind, do not count.
func (l *Lesson) recompute() {
	if len(l.steps) == 0 {
		l.Percent = decimal.Zero
		return
	}

	done := 0
	for _, step := range l.steps {
		switch step.Kind() {
		case learner.StepKindVideo:
			if slices.Contains(l.Completed, step.StepID()) {
				done++
			}
		case learner.StepKindQuestion:
			if slices.Contains(l.Answered, step.StepID()) {
				done++
			}
		}
	}

	l.Percent = decimal.NewFromInt(int64(done)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(len(l.steps)))).
		Round(2)
}

func addOnce(ids []learner.StepID, id learner.StepID) []learner.StepID {
	if slices.Contains(ids, id) {
		return ids
	}
	ids = append(ids, id)
	slices.Sort(ids)
	return ids
}

// Store holds the read model in memory.
type Store struct {
	mu       sync.RWMutex
	learners map[uuid.UUID]*Learner
	codec    learner.Codec
}

// NewStore creates an empty read model.
func NewStore() *Store {
	return &Store{learners: make(map[uuid.UUID]*Learner)}
}

// Get returns a copy of the progress of learnerID.
func (s *Store) Get(learnerID uuid.UUID) (Learner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[learnerID]
	if !ok {
		return Learner{}, false
	}
	return l.clone(), true
}

// All returns copies of every learner ordered by id.
func (s *Store) All() []Learner {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Learner, 0, len(s.learners))
	for _, l := range s.learners {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LearnerID.String() < out[j].LearnerID.String()
	})
	return out
}

// Projection returns the projection that keeps s current.
func (s *Store) Projection() projection.Projection {
	b := projection.NewBuilder(ProjectionName).OnReset(s.reset)
	for _, eventType := range []string{"LearnerCreated", "LessonStarted", "VideoBookmarked", "VideoCompleted", "QuestionAnswered"} {
		b.On(eventType, s.handle)
	}
	return b.Build()
}

func (s *Store) reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learners = make(map[uuid.UUID]*Learner)
	return nil
}

func (s *Store) handle(_ context.Context, env *domain.Event) error {
	if env.AggregateType != learner.AggregateType {
		return nil
	}

	evt, err := s.codec.Unmarshal(env.EventType, env.SchemaVersion, env.Data)
	if err != nil {
		return err
	}

	learnerID, err := uuid.Parse(env.AggregateID)
	if err != nil {
		return fmt.Errorf("learner aggregate id %q: %w", env.AggregateID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.learners[learnerID]
	if !ok {
		l = &Learner{LearnerID: learnerID}
		s.learners[learnerID] = l
	}
	// Redelivered events are already folded in.
	if ok && env.Version <= l.Version {
		return nil
	}
	l.Version = env.Version
	l.UpdatedAt = env.Timestamp

	switch e := evt.(type) {
	case learner.LearnerCreated:
		l.Name = e.Name

	case learner.LessonStarted:
		lesson := l.lesson(e.Lesson.ID)
		lesson.Name = e.Lesson.Name
		lesson.Started = true
		lesson.TimesStarted++
		lesson.StepCount = len(e.Lesson.Steps)
		lesson.steps = slices.Clone(e.Lesson.Steps)
		lesson.recompute()

	case learner.VideoBookmarked:
		lesson := l.lesson(e.LessonID)
		lesson.Bookmarks[e.StepID] = e.SecondsIntoVideo

	case learner.VideoCompleted:
		lesson := l.lesson(e.LessonID)
		lesson.Completed = addOnce(lesson.Completed, e.StepID)
		lesson.recompute()

	case learner.QuestionAnswered:
		lesson := l.lesson(e.LessonID)
		lesson.Answered = addOnce(lesson.Answered, e.StepID)
		lesson.recompute()
	}

	return nil
}
