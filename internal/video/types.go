package video

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brightboard-labs/brightboard/internal/config"
)

// Summarizer produces a short animated recap video for a finished lesson.
// Implementations are long-running; callers should treat failures as
// non-fatal.
type Summarizer interface {
	Summarize(ctx context.Context, topic string) (string, error)
}

// NewSummarizer builds the configured backend.
func NewSummarizer(cfg config.VideoConfig, logger *slog.Logger) (Summarizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSummarizer(), nil
	case "http":
		return newHTTPSummarizer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown video mode %q", cfg.Mode)
	}
}
