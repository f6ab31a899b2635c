package lessons

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is wrapped by every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid lesson catalog")

type catalogDoc struct {
	Lessons []lessonDoc `yaml:"lessons"`
}

type lessonDoc struct {
	ID    string    `yaml:"id"`
	Name  string    `yaml:"name"`
	Steps []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Kind   string `yaml:"kind"`
	ID     int32  `yaml:"id"`
	URL    string `yaml:"url,omitempty"`
	Prompt string `yaml:"prompt,omitempty"`
}

// ParseYAML decodes and validates a catalog document:
//
//	lessons:
//	  - id: 7a1c9e52-31b4-4c0e-8f7d-6e5b4a3c2d11
//	    name: Lesson 1
//	    steps:
//	      - {kind: video, id: 1, url: https://videos.example.com/intro.mp4}
//	      - {kind: question, id: 2, prompt: What did the intro cover?}
//
// Every problem found is reported, joined into one error wrapping ErrInvalidCatalog.
func ParseYAML(data []byte) ([]learner.Lesson, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var (
		errs    []error
		lessons = make([]learner.Lesson, 0, len(doc.Lessons))
		seen    = make(map[uuid.UUID]bool, len(doc.Lessons))
	)
	for i, ld := range doc.Lessons {
		lesson, lessonErrs := ld.lesson(i)
		errs = append(errs, lessonErrs...)
		if len(lessonErrs) > 0 {
			continue
		}
		if seen[lesson.ID] {
			errs = append(errs, fmt.Errorf("lessons[%d]: duplicate lesson id %s", i, lesson.ID))
			continue
		}
		seen[lesson.ID] = true
		lessons = append(lessons, lesson)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return lessons, nil
}

func (ld lessonDoc) lesson(i int) (learner.Lesson, []error) {
	var errs []error

	id, err := uuid.Parse(ld.ID)
	if err != nil || id == uuid.Nil {
		errs = append(errs, fmt.Errorf("lessons[%d]: id %q is not a uuid", i, ld.ID))
	}
	if strings.TrimSpace(ld.Name) == "" {
		errs = append(errs, fmt.Errorf("lessons[%d]: name is required", i))
	}

	steps := make([]learner.Step, 0, len(ld.Steps))
	stepIDs := make(map[int32]bool, len(ld.Steps))
	for j, sd := range ld.Steps {
		where := fmt.Sprintf("lessons[%d].steps[%d]", i, j)
		if stepIDs[sd.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate step id %d", where, sd.ID))
		}
		stepIDs[sd.ID] = true

		switch learner.StepKind(sd.Kind) {
		case learner.StepKindVideo:
			if !govalidator.IsURL(sd.URL) {
				errs = append(errs, fmt.Errorf("%s: url %q is not valid", where, sd.URL))
			}
			steps = append(steps, learner.Video{ID: learner.StepID(sd.ID), URL: sd.URL})
		case learner.StepKindQuestion:
			if strings.TrimSpace(sd.Prompt) == "" {
				errs = append(errs, fmt.Errorf("%s: prompt is required", where))
			}
			steps = append(steps, learner.Question{ID: learner.StepID(sd.ID), Prompt: sd.Prompt})
		default:
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", where, sd.Kind))
		}
	}

	return learner.NewLesson(id, ld.Name, steps...), errs
}

// MarshalYAML encodes lessons in the catalog format read by ParseYAML.
func MarshalYAML(lessons []learner.Lesson) ([]byte, error) {
	doc := catalogDoc{Lessons: make([]lessonDoc, 0, len(lessons))}
	for _, l := range lessons {
		ld := lessonDoc{ID: l.ID.String(), Name: l.Name}
		for _, s := range l.Steps {
			switch s := s.(type) {
			case learner.Video:
				ld.Steps = append(ld.Steps, stepDoc{Kind: string(learner.StepKindVideo), ID: int32(s.ID), URL: s.URL})
			case learner.Question:
				ld.Steps = append(ld.Steps, stepDoc{Kind: string(learner.StepKindQuestion), ID: int32(s.ID), Prompt: s.Prompt})
			}
		}
		doc.Lessons = append(doc.Lessons, ld)
	}
	return yaml.Marshal(doc)
}
