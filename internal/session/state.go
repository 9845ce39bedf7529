// Package session drives one classroom lesson from topic entry through
// teaching, quiz, and wrap-up. All mutation goes through the Controller;
// readers only ever see immutable snapshots.
package session

import "github.com/brightboard-labs/brightboard/internal/protocol"

// Phase is the coarse position inside a lesson.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePlanning Phase = "planning"
	PhaseTeaching Phase = "teaching"
	PhaseQuiz     Phase = "quiz"
)

// NoSelection marks an unanswered quiz question.
const NoSelection = -1

// State is the full mutable session state. Copied under the controller
// lock before leaving the package.
type State struct {
	SessionID     string
	Phase         Phase
	Overview      bool
	SectionIndex  int
	QuizIndex     int
	Score         int
	Selected      int
	Finished      bool
	AggregateView bool
	Notice        string
	Student       protocol.StudentInfo
}

func newIdleState() State {
	return State{Phase: PhaseIdle, Selected: NoSelection}
}
