package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/brightboard-labs/brightboard/internal/config"
)

type openAISynthesizer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func newOpenAISynthesizer(cfg config.SpeechConfig, logger *slog.Logger) *openAISynthesizer {
	return &openAISynthesizer{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.With(slog.String("component", "speech-synthesizer")),
	}
}

func (s *openAISynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("no audio generated")
	}
	return pcm, nil
}

// classify separates quota/rate exhaustion from generic failures so the
// narration layer can report "text-only mode" instead of a hard error.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "quota") || strings.Contains(msg, "limit") {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	return err
}
