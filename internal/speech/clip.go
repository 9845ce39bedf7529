package speech

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip is a decoded playable audio buffer.
type Clip struct {
	Buffer *audio.IntBuffer
}

// DecodePCM turns raw s16le PCM into a playable buffer.
func DecodePCM(pcm []byte, sampleRate, channels int) *Clip {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &Clip{
		Buffer: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           samples,
			SourceBitDepth: 16,
		},
	}
}

// Duration reports the clip's playback length.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.Buffer == nil || c.Buffer.Format == nil || c.Buffer.Format.SampleRate == 0 {
		return 0
	}
	frames := len(c.Buffer.Data) / c.Buffer.Format.NumChannels
	return time.Duration(frames) * time.Second / time.Duration(c.Buffer.Format.SampleRate)
}

// WAV encodes the clip for transport to players that expect a container.
func (c *Clip) WAV() ([]byte, error) {
	if c == nil || c.Buffer == nil {
		return nil, errors.New("empty clip")
	}
	var ws seekBuffer
	enc := wav.NewEncoder(&ws, c.Buffer.Format.SampleRate, 16, c.Buffer.Format.NumChannels, 1)
	if err := enc.Write(c.Buffer); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return ws.data, nil
}

// seekBuffer adapts an in-memory byte slice to the io.WriteSeeker the wav
// encoder needs for patching chunk sizes on close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = next
	return int64(next), nil
}
