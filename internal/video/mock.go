package video

import (
	"context"
	"strings"
	"time"
)

type mockSummarizer struct{}

func NewMockSummarizer() Summarizer { return &mockSummarizer{} }

func (m *mockSummarizer) Summarize(ctx context.Context, topic string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(topic), " ", "-"))
	if slug == "" {
		slug = "lesson"
	}
	return "https://videos.invalid/summaries/" + slug + ".mp4", nil
}
