package learner

import "github.com/google/uuid"

// Event is one of LearnerCreated, LessonStarted, VideoBookmarked, VideoCompleted or QuestionAnswered.
type Event interface {
	// EventName is the stable name stored in the envelope.
	EventName() string
	isEvent()
}

// LearnerCreated records the creation of a learner.
type LearnerCreated struct {
	LearnerID uuid.UUID `json:"learner_id"`
	Name      string    `json:"name"`
}

// LessonStarted records that a lesson was opened. It embeds the lesson as it was
// at that moment so replay never has to look it up again.
type LessonStarted struct {
	LearnerID uuid.UUID `json:"learner_id"`
	Lesson    Lesson    `json:"lesson"`
}

// VideoBookmarked records a playback position.
type VideoBookmarked struct {
	LearnerID        uuid.UUID `json:"learner_id"`
	LessonID         uuid.UUID `json:"lesson_id"`
	StepID           StepID    `json:"step_id"`
	SecondsIntoVideo Seconds   `json:"seconds_into_video"`
}

// VideoCompleted records a finished video.
type VideoCompleted struct {
	LearnerID uuid.UUID `json:"learner_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	StepID    StepID    `json:"step_id"`
}

// QuestionAnswered records an answer.
type QuestionAnswered struct {
	LearnerID uuid.UUID `json:"learner_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	StepID    StepID    `json:"step_id"`
	Answer    Answer    `json:"answer"`
}

func (LearnerCreated) EventName() string   { return "LearnerCreated" }
func (LessonStarted) EventName() string    { return "LessonStarted" }
func (VideoBookmarked) EventName() string  { return "VideoBookmarked" }
func (VideoCompleted) EventName() string   { return "VideoCompleted" }
func (QuestionAnswered) EventName() string { return "QuestionAnswered" }

func (LearnerCreated) isEvent()   {}
func (LessonStarted) isEvent()    {}
func (VideoBookmarked) isEvent()  {}
func (VideoCompleted) isEvent()   {}
func (QuestionAnswered) isEvent() {}
