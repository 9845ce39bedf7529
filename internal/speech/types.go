package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brightboard-labs/brightboard/internal/config"
)

// ErrQuotaExceeded marks a rate or quota failure from the speech backend.
// Callers degrade to text-only narration instead of failing the lesson.
var ErrQuotaExceeded = errors.New("speech quota exceeded")

// Synthesizer is the contract for producing raw speech audio. The returned
// bytes are signed 16-bit little-endian PCM at the configured rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// NewSynthesizer builds the configured backend.
func NewSynthesizer(cfg config.SpeechConfig, logger *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynthesizer(cfg.SampleRate, cfg.Channels), nil
	case "openai":
		return newOpenAISynthesizer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
}
