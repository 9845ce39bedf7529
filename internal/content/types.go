package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/lesson"
)

// Source is the contract for generating lesson plans and illustrations.
type Source interface {
	// GeneratePlan produces a full lesson plan for a free-form topic. The
	// plan carries exactly the configured number of sections (the last one a
	// review step) and exactly quizCount quiz items.
	GeneratePlan(ctx context.Context, topic, grade, style string, quizCount int) (*lesson.Plan, error)
	// GeneratePlanFromText builds the plan from uploaded source material
	// instead of a topic keyword.
	GeneratePlanFromText(ctx context.Context, sourceText, grade, style string, quizCount int) (*lesson.Plan, error)
	// GenerateImage returns PNG bytes for the prompt.
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// GenerationError marks a malformed or empty model response.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("content generation failed (%s): %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewSource builds the configured backend.
func NewSource(cfg config.ContentConfig, logger *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSource(cfg.SectionCount), nil
	case "openai":
		return newOpenAISource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown content mode %q", cfg.Mode)
	}
}
