package narration

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brightboard-labs/brightboard/internal/protocol"
	"github.com/brightboard-labs/brightboard/internal/speech"
)

// BusPlayer publishes narration audio on the message bus for whatever
// client is rendering the classroom. Playback completion is approximated
// with a timer matching the clip length, since the renderer is remote.
type BusPlayer struct {
	nc     *nats.Conn
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewBusPlayer(nc *nats.Conn, logger *slog.Logger) *BusPlayer {
	return &BusPlayer{
		nc:     nc,
		logger: logger.With(slog.String("component", "bus-player")),
	}
}

func (p *BusPlayer) Play(clip *speech.Clip, text string, done func()) {
	wavData, err := clip.WAV()
	if err != nil {
		p.logger.Error("encode narration clip", slog.String("error", err.Error()))
		done()
		return
	}

	msg := protocol.NarrationAudio{Text: text, WAV: wavData}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshal narration audio", slog.String("error", err.Error()))
		done()
		return
	}
	if err := p.nc.Publish(protocol.SubjectNarrationAudio, data); err != nil {
		p.logger.Error("publish narration audio", slog.String("error", err.Error()))
		done()
		return
	}

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(clip.Duration(), done)
	p.mu.Unlock()
}

func (p *BusPlayer) Stop() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if err := p.nc.Publish(protocol.SubjectNarrationStop, nil); err != nil {
		p.logger.Warn("publish narration stop", slog.String("error", err.Error()))
	}
}
