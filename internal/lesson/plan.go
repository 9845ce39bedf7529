package lesson

import (
	"errors"
	"fmt"
	"strings"
)

// VisualKind tells the board how a section wants to be illustrated.
type VisualKind string

const (
	VisualNone  VisualKind = "none"
	VisualImage VisualKind = "image"
)

// Section is one teaching step of a lesson. Read-only once generated.
type Section struct {
	Title         string     `json:"sectionTitle"`
	NarrationText string     `json:"text"`
	VisualPrompts []string   `json:"visualPrompts"`
	VisualKind    VisualKind `json:"visualType"`
}

// QuizItem is a multiple-choice question. CorrectIndex is always a valid
// index into Options.
type QuizItem struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"answer"`
}

// Activity is a hands-on follow-up suggestion carried by the plan.
// Display-only; the session state machine never reads it.
type Activity struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Materials    []string `json:"materials"`
	Steps        []string `json:"steps"`
	ResultPrompt string   `json:"exampleResultDesc"`
}

// Plan is a full generated lesson. Immutable; owned by the session
// controller for the duration of one session.
type Plan struct {
	Topic        string     `json:"topic"`
	LearningGoal string     `json:"learningGoal"`
	Sections     []Section  `json:"sections"`
	Quizzes      []QuizItem `json:"quizzes"`
	Activities   []Activity `json:"activities"`
}

// Validate checks a generated plan against the counts the prompt demanded.
// The last section must be the summary/review step.
func Validate(p *Plan, wantSections, wantQuizzes int) error {
	if p == nil {
		return errors.New("plan is nil")
	}
	if strings.TrimSpace(p.Topic) == "" {
		return errors.New("plan topic is empty")
	}
	if strings.TrimSpace(p.LearningGoal) == "" {
		return errors.New("plan learning goal is empty")
	}
	if len(p.Sections) != wantSections {
		return fmt.Errorf("plan has %d sections, want %d", len(p.Sections), wantSections)
	}
	if len(p.Quizzes) != wantQuizzes {
		return fmt.Errorf("plan has %d quizzes, want %d", len(p.Quizzes), wantQuizzes)
	}
	for i, sec := range p.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			return fmt.Errorf("section %d has no title", i)
		}
		if strings.TrimSpace(sec.NarrationText) == "" {
			return fmt.Errorf("section %d has no narration text", i)
		}
		switch sec.VisualKind {
		case VisualNone, VisualImage:
		default:
			return fmt.Errorf("section %d has unknown visual kind %q", i, sec.VisualKind)
		}
	}
	for i, q := range p.Quizzes {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("quiz %d has no question", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("quiz %d has %d options, want at least 2", i, len(q.Options))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("quiz %d answer index %d out of range [0,%d)", i, q.CorrectIndex, len(q.Options))
		}
	}
	return nil
}
