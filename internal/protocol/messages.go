package protocol

import "time"

// Command is a learner action sent to the session service.
type Command struct {
	Action     string      `json:"action"`
	Topic      string      `json:"topic,omitempty"`
	SourceText string      `json:"source_text,omitempty"`
	Grade      string      `json:"grade,omitempty"`
	QuizCount  int         `json:"quiz_count,omitempty"`
	Option     int         `json:"option,omitempty"`
	Student    StudentInfo `json:"student,omitempty"`
}

// Command actions understood by the session service.
const (
	ActionStart        = "start"
	ActionBegin        = "begin"
	ActionNext         = "next"
	ActionPrev         = "prev"
	ActionAnswer       = "answer"
	ActionNextQuestion = "next_question"
	ActionRestart      = "restart"
	ActionReplay       = "replay"
	ActionToggleView   = "toggle_view"
	ActionVideo        = "video"
)

// StudentInfo is display-only metadata owned by the host application.
type StudentInfo struct {
	SchoolName  string `json:"school_name,omitempty"`
	GradeClass  string `json:"grade_class,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}

// StateSnapshot is the read-only session state broadcast after every transition.
type StateSnapshot struct {
	SessionID     string    `json:"session_id"`
	Phase         string    `json:"phase"`
	Overview      bool      `json:"overview"`
	SectionIndex  int       `json:"section_index"`
	SectionCount  int       `json:"section_count"`
	QuizIndex     int       `json:"quiz_index"`
	QuizCount     int       `json:"quiz_count"`
	Score         int       `json:"score"`
	Selected      int       `json:"selected"`
	Finished      bool      `json:"finished"`
	Topic         string    `json:"topic,omitempty"`
	LearningGoal  string    `json:"learning_goal,omitempty"`
	AggregateView bool      `json:"aggregate_view"`
	Playing       bool      `json:"playing"`
	AudioNotice   string    `json:"audio_notice,omitempty"`
	Notice        string    `json:"notice,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NarrationAudio carries one playable WAV clip for the utterance text.
type NarrationAudio struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	WAV       []byte `json:"wav"`
}

// NarrationStatus reports playback state changes and audio errors.
type NarrationStatus struct {
	SessionID string    `json:"session_id"`
	Playing   bool      `json:"playing"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BoardImage is a generated sketch for the currently displayed title.
type BoardImage struct {
	SessionID string `json:"session_id"`
	Scope     string `json:"scope"` // topic, section, quiz, avatar, background
	Index     int    `json:"index"`
	PNG       []byte `json:"png"`
}

// SectionImages carries the illustration set for one lesson section.
type SectionImages struct {
	SessionID string   `json:"session_id"`
	Index     int      `json:"index"`
	PNGs      [][]byte `json:"pngs"`
}

// QuizFeedback signals whether the selected option was correct.
type QuizFeedback struct {
	SessionID string `json:"session_id"`
	QuizIndex int    `json:"quiz_index"`
	Selected  int    `json:"selected"`
	Correct   bool   `json:"correct"`
}

// VideoStatus reports the outcome of a summary video request.
type VideoStatus struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	SubjectSessionCommand  = "classroom.session.cmd"
	SubjectSessionState    = "classroom.session.state"
	SubjectNarrationAudio  = "classroom.narration.audio"
	SubjectNarrationStop   = "classroom.narration.stop"
	SubjectNarrationStatus = "classroom.narration.status"
	SubjectBoardImage      = "classroom.board.image"
	SubjectSectionImages   = "classroom.section.images"
	SubjectQuizFeedback    = "classroom.quiz.feedback"
	SubjectVideoStatus     = "classroom.video.status"
)
