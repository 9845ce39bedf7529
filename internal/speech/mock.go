package speech

import (
	"context"
	"time"
)

type mockSynthesizer struct {
	sampleRate int
	channels   int
}

// NewMockSynthesizer emits silence sized to the text, roughly 60ms per rune.
func NewMockSynthesizer(sampleRate, channels int) Synthesizer {
	return &mockSynthesizer{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	runes := len([]rune(text))
	if runes == 0 {
		runes = 1
	}
	frames := m.sampleRate * runes * 60 / 1000
	return make([]byte, frames*m.channels*2), nil
}
