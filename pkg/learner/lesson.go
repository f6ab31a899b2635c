package learner

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// StepID identifies a step within its lesson.
type StepID int32

// Seconds is a playback offset into a video.
type Seconds int32

// StepKind tags the variant of a step on the wire.
type StepKind string

const (
	StepKindVideo    StepKind = "video"
	StepKindQuestion StepKind = "question"
)

// Step is one element of a lesson: a Video or a Question.
type Step interface {
	StepID() StepID
	Kind() StepKind
	isStep()
}

// Video is a step that plays the video at URL.
type Video struct {
	ID  StepID
	URL string
}

func (v Video) StepID() StepID { return v.ID }
func (Video) Kind() StepKind    { return StepKindVideo }
func (Video) isStep()           {}

// Question is a step that asks Prompt.
type Question struct {
	ID     StepID
	Prompt string
}

func (q Question) StepID() StepID { return q.ID }
func (Question) Kind() StepKind    { return StepKindQuestion }
func (Question) isStep()           {}

// Lesson is an immutable snapshot of a lesson and its ordered steps.
type Lesson struct {
	ID    uuid.UUID
	Name  string
	Steps []Step
}

// NewLesson builds a lesson snapshot. A lesson without steps has a nil Steps slice.
func NewLesson(id uuid.UUID, name string, steps ...Step) Lesson {
	if len(steps) == 0 {
		return Lesson{ID: id, Name: name}
	}
	return Lesson{ID: id, Name: name, Steps: slices.Clone(steps)}
}

// Clone returns a copy of l that shares no backing array with it. Empty steps
// become nil, matching NewLesson and the JSON decoding.
func (l Lesson) Clone() Lesson {
	if len(l.Steps) == 0 {
		l.Steps = nil
		return l
	}
	l.Steps = slices.Clone(l.Steps)
	return l
}

// Step returns the step with the given id, if the lesson has one.
func (l Lesson) Step(id StepID) (Step, bool) {
	for _, s := range l.Steps {
		if s.StepID() == id {
			return s, true
		}
	}
	return nil, false
}

// Videos returns the number of video steps.
func (l Lesson) Videos() int {
	n := 0
	for _, s := range l.Steps {
		if s.Kind() == StepKindVideo {
			n++
		}
	}
	return n
}

type stepJSON struct {
	Kind   StepKind `json:"kind"`
	ID     StepID   `json:"id"`
	URL    string   `json:"url,omitempty"`
	Prompt string   `json:"prompt,omitempty"`
}

type lessonJSON struct {
	ID    uuid.UUID  `json:"id"`
	Name  string     `json:"name"`
	Steps []stepJSON `json:"steps"`
}

// MarshalJSON encodes the lesson with kind-tagged steps.
func (l Lesson) MarshalJSON() ([]byte, error) {
	out := lessonJSON{ID: l.ID, Name: l.Name, Steps: make([]stepJSON, 0, len(l.Steps))}
	for _, s := range l.Steps {
		switch s := s.(type) {
		case Video:
			out.Steps = append(out.Steps, stepJSON{Kind: StepKindVideo, ID: s.ID, URL: s.URL})
		case Question:
			out.Steps = append(out.Steps, stepJSON{Kind: StepKindQuestion, ID: s.ID, Prompt: s.Prompt})
		default:
			return nil, fmt.Errorf("unsupported step %T", s)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a lesson with kind-tagged steps.
func (l *Lesson) UnmarshalJSON(data []byte) error {
	var in lessonJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var steps []Step
	for _, s := range in.Steps {
		step, err := s.step()
		if err != nil {
			return err
		}
		steps = append(steps, step)
	}

	*l = Lesson{ID: in.ID, Name: in.Name, Steps: steps}
	return nil
}

func (s stepJSON) step() (Step, error) {
	switch s.Kind {
	case StepKindVideo:
		return Video{ID: s.ID, URL: s.URL}, nil
	case StepKindQuestion:
		return Question{ID: s.ID, Prompt: s.Prompt}, nil
	default:
		return nil, fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// Answer is a learner's response to a question. It carries no fields yet.
type Answer struct{}
