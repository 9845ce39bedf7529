package content

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/brightboard-labs/brightboard/internal/lesson"
)

type mockSource struct {
	sections int
}

// NewMockSource returns a deterministic source for development and tests.
func NewMockSource(sections int) Source {
	return &mockSource{sections: sections}
}

func (m *mockSource) GeneratePlan(ctx context.Context, topic, grade, style string, quizCount int) (*lesson.Plan, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return m.buildPlan(topic, quizCount), nil
}

func (m *mockSource) GeneratePlanFromText(ctx context.Context, sourceText, grade, style string, quizCount int) (*lesson.Plan, error) {
	topic := "uploaded material"
	if len(sourceText) > 0 && len(sourceText) < 40 {
		topic = sourceText
	}
	return m.GeneratePlan(ctx, topic, grade, style, quizCount)
}

func (m *mockSource) buildPlan(topic string, quizCount int) *lesson.Plan {
	p := &lesson.Plan{
		Topic:        topic,
		LearningGoal: fmt.Sprintf("Understand the basics of %s.", topic),
	}
	for i := 0; i < m.sections; i++ {
		title := fmt.Sprintf("Step %d: exploring %s", i+1, topic)
		if i == m.sections-1 {
			title = "Review: what we learned"
		}
		p.Sections = append(p.Sections, lesson.Section{
			Title:         title,
			NarrationText: fmt.Sprintf("This is part %d of our lesson about %s.", i+1, topic),
			VisualPrompts: []string{fmt.Sprintf("simple illustration of %s, part %d", topic, i+1)},
			VisualKind:    lesson.VisualImage,
		})
	}
	for i := 0; i < quizCount; i++ {
		p.Quizzes = append(p.Quizzes, lesson.QuizItem{
			Question:     fmt.Sprintf("Question about %s number %d?", topic, i+1),
			Options:      []string{"first option", "second option", "third option"},
			CorrectIndex: i % 3,
		})
	}
	p.Activities = append(p.Activities, lesson.Activity{
		Title:        fmt.Sprintf("Draw %s", topic),
		Description:  "Draw what you remember from the lesson.",
		Materials:    []string{"paper", "crayons"},
		Steps:        []string{"Think about the lesson.", "Draw your favorite part."},
		ResultPrompt: fmt.Sprintf("a child's colorful drawing about %s", topic),
	})
	return p
}

func (m *mockSource) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+1] = 255
		img.Pix[i+2] = 255
		img.Pix[i+3] = 255
	}
	img.SetNRGBA(3, 3, color.NRGBA{30, 30, 30, 255})
	img.SetNRGBA(4, 4, color.NRGBA{30, 30, 30, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
