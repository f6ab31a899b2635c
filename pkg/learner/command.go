package learner

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
)

// Command is one of CreateLearner, StartLesson, BookmarkVideo, CompleteVideo or AnswerQuestion.
type Command interface {
	eventsourcing.Command
	Validate() error
	isCommand()
}

// CreateLearner registers a learner. Issuing it twice records two creations.
type CreateLearner struct {
	LearnerID uuid.UUID `json:"learner_id"`
	Name      string    `json:"name"`
}

// StartLesson records that the learner opened a lesson.
type StartLesson struct {
	LearnerID uuid.UUID `json:"learner_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
}

// BookmarkVideo records a playback position within a video step.
type BookmarkVideo struct {
	LearnerID        uuid.UUID `json:"learner_id"`
	LessonID         uuid.UUID `json:"lesson_id"`
	StepID           StepID    `json:"step_id"`
	SecondsIntoVideo Seconds   `json:"seconds_into_video"`
}

// CompleteVideo records that a video step was watched to the end.
type CompleteVideo struct {
	LearnerID uuid.UUID `json:"learner_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	StepID    StepID    `json:"step_id"`
}

// AnswerQuestion records the learner's answer to a question step.
type AnswerQuestion struct {
	LearnerID uuid.UUID `json:"learner_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	StepID    StepID    `json:"step_id"`
	Answer    Answer    `json:"answer"`
}

func (c CreateLearner) AggregateID() string  { return c.LearnerID.String() }
func (c StartLesson) AggregateID() string    { return c.LearnerID.String() }
func (c BookmarkVideo) AggregateID() string  { return c.LearnerID.String() }
func (c CompleteVideo) AggregateID() string  { return c.LearnerID.String() }
func (c AnswerQuestion) AggregateID() string { return c.LearnerID.String() }

func (CreateLearner) CommandType() string  { return "CreateLearner" }
func (StartLesson) CommandType() string    { return "StartLesson" }
func (BookmarkVideo) CommandType() string  { return "BookmarkVideo" }
func (CompleteVideo) CommandType() string  { return "CompleteVideo" }
func (AnswerQuestion) CommandType() string { return "AnswerQuestion" }

func (CreateLearner) isCommand()  {}
func (StartLesson) isCommand()    {}
func (BookmarkVideo) isCommand()  {}
func (CompleteVideo) isCommand()  {}
func (AnswerQuestion) isCommand() {}

// CommandTypes lists the type names of every learner command.
func CommandTypes() []string {
	return []string{"CreateLearner", "StartLesson", "BookmarkVideo", "CompleteVideo", "AnswerQuestion"}
}

// DecodeCommand decodes a JSON command payload of the named type.
// Unknown types wrap domain.ErrCommandNotFound; malformed payloads and a missing
// learner_id wrap domain.ErrInvalidCommand.
func DecodeCommand(commandType string, data []byte) (Command, error) {
	switch commandType {
	case "CreateLearner":
		return decodeCommand[CreateLearner](data)
	case "StartLesson":
		return decodeCommand[StartLesson](data)
	case "BookmarkVideo":
		return decodeCommand[BookmarkVideo](data)
	case "CompleteVideo":
		return decodeCommand[CompleteVideo](data)
	case "AnswerQuestion":
		return decodeCommand[AnswerQuestion](data)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrCommandNotFound, commandType)
	}
}

func decodeCommand[T Command](data []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidCommand, cmd.CommandType(), err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidCommand, cmd.CommandType(), err)
	}
	return cmd, nil
}

var (
	errLearnerIDRequired = errors.New("learner_id is required")
	errLessonIDRequired  = errors.New("lesson_id is required")
)

// Validate reports a missing learner id.
func (c CreateLearner) Validate() error {
	if c.LearnerID == uuid.Nil {
		return errLearnerIDRequired
	}
	return nil
}

// Validate reports a missing learner or lesson id.
func (c StartLesson) Validate() error    { return requireIDs(c.LearnerID, c.LessonID) }
func (c BookmarkVideo) Validate() error  { return requireIDs(c.LearnerID, c.LessonID) }
func (c CompleteVideo) Validate() error  { return requireIDs(c.LearnerID, c.LessonID) }
func (c AnswerQuestion) Validate() error { return requireIDs(c.LearnerID, c.LessonID) }

func requireIDs(learnerID, lessonID uuid.UUID) error {
	if learnerID == uuid.Nil {
		return errLearnerIDRequired
	}
	if lessonID == uuid.Nil {
		return errLessonIDRequired
	}
	return nil
}
