// Package narration turns lesson text into audible speech exactly once per
// distinct utterance: clips are cached per verbatim text, concurrent fetches
// for identical text are collapsed into one, and a live-token guard makes
// sure only the most recently requested utterance ever becomes audible no
// matter in which order fetches complete.
package narration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/brightboard-labs/brightboard/internal/speech"
)

// User-facing notices for narration failures. Narration is never fatal to
// the lesson; these surface as inline notices only.
const (
	NoticeQuotaExceeded   = "daily audio limit exceeded, continuing in text-only mode"
	NoticePlaybackFailure = "could not play audio"
)

// Player is the audible output sink. Play must not block; done is invoked
// when the clip finishes naturally (not when interrupted by Stop).
type Player interface {
	Play(clip *speech.Clip, text string, done func())
	Stop()
}

type Options struct {
	Voice      string
	SampleRate int
	Channels   int
	CacheSize  int
}

type Engine struct {
	synth  speech.Synthesizer
	player Player
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	cache   *lru.Cache[string, *speech.Clip]
	flight  *singleflight.Group
	token   string
	playSeq uint64
	playing bool
	lastErr string

	// playMu orders every player start against every player stop: the final
	// token check and the Play call happen under it, as does the Stop issued
	// by a superseding utterance. A check that passed can therefore never
	// start after the stop that was meant to silence it.
	playMu sync.Mutex

	// onStatus, when set, is invoked after every playing/error change.
	onStatus func(playing bool, errMsg string)

	cacheHits  metric.Int64Counter
	fetches    metric.Int64Counter
	staleDrops metric.Int64Counter
}

func NewEngine(synth speech.Synthesizer, player Player, opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, *speech.Clip](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	meter := otel.Meter("brightboard/narration")
	cacheHits, _ := meter.Int64Counter("narration.cache_hits")
	fetches, _ := meter.Int64Counter("narration.fetches")
	staleDrops, _ := meter.Int64Counter("narration.stale_drops")

	return &Engine{
		synth:      synth,
		player:     player,
		opts:       opts,
		logger:     logger.With(slog.String("component", "narration-engine")),
		cache:      cache,
		flight:     new(singleflight.Group),
		cacheHits:  cacheHits,
		fetches:    fetches,
		staleDrops: staleDrops,
	}, nil
}

// SetStatusFunc registers a listener for playing/error changes. Must be
// called before the engine is used.
func (e *Engine) SetStatusFunc(fn func(playing bool, errMsg string)) {
	e.onStatus = fn
}

// Resolve returns the clip for text, fetching it at most once per distinct
// text: cache first, then any in-flight fetch for the same text, then a new
// fetch whose result is cached on success. Keys are the exact narration
// string; no normalization.
func (e *Engine) Resolve(ctx context.Context, text string) (*speech.Clip, error) {
	e.mu.Lock()
	cache, flight := e.cache, e.flight
	e.mu.Unlock()

	if clip, ok := cache.Get(text); ok {
		e.cacheHits.Add(ctx, 1)
		return clip, nil
	}

	v, err, _ := flight.Do(text, func() (any, error) {
		if clip, ok := cache.Get(text); ok {
			e.cacheHits.Add(ctx, 1)
			return clip, nil
		}
		e.fetches.Add(ctx, 1)
		pcm, err := e.synth.Synthesize(ctx, text, e.opts.Voice)
		if err != nil {
			return nil, err
		}
		clip := speech.DecodePCM(pcm, e.opts.SampleRate, e.opts.Channels)
		cache.Add(text, clip)
		return clip, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*speech.Clip), nil
}

// Play makes text the live utterance, silences whatever is currently
// audible, and starts playback once the clip resolves. If another Play call
// supersedes this one in the meantime the resolved clip is dropped
// silently. Returns immediately.
func (e *Engine) Play(ctx context.Context, text string) {
	e.mu.Lock()
	e.token = text
	e.playSeq++
	seq := e.playSeq
	e.playing = true
	e.lastErr = ""
	e.mu.Unlock()
	e.notify()

	e.playMu.Lock()
	e.player.Stop()
	e.playMu.Unlock()

	go func() {
		clip, err := e.Resolve(ctx, text)
		if err != nil {
			e.failPlayback(text, seq, err)
			return
		}

		e.playMu.Lock()
		defer e.playMu.Unlock()

		e.mu.Lock()
		if e.token != text || e.playSeq != seq {
			e.mu.Unlock()
			e.staleDrops.Add(ctx, 1)
			return
		}
		e.mu.Unlock()

		e.player.Play(clip, text, func() {
			e.mu.Lock()
			if e.token == text && e.playSeq == seq {
				e.playing = false
			}
			e.mu.Unlock()
			e.notify()
		})
	}()
}

func (e *Engine) failPlayback(text string, seq uint64, err error) {
	notice := NoticePlaybackFailure
	if errors.Is(err, speech.ErrQuotaExceeded) {
		notice = NoticeQuotaExceeded
	}
	e.logger.Warn("narration fetch failed", slog.String("error", err.Error()))

	e.mu.Lock()
	if e.token != text || e.playSeq != seq {
		// A newer utterance superseded this one; its failure is not
		// user-visible.
		e.mu.Unlock()
		return
	}
	e.lastErr = notice
	e.playing = false
	e.mu.Unlock()
	e.notify()
}

// Prefetch warms the cache for text without touching the live token.
// Errors are logged and swallowed. Fire-and-forget.
func (e *Engine) Prefetch(ctx context.Context, text string) {
	go func() {
		if _, err := e.Resolve(ctx, text); err != nil {
			e.logger.Warn("narration prefetch failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop silences any in-progress playback. Idempotent; safe when nothing is
// playing. The underlying fetch, if any, keeps running and may still
// populate the cache.
func (e *Engine) Stop() {
	e.playMu.Lock()
	e.player.Stop()
	e.playMu.Unlock()
	e.mu.Lock()
	changed := e.playing
	e.playing = false
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// Reset discards the clip cache and in-flight dedup state. Called
// synchronously when a new lesson starts, before any new fetch is issued,
// so stale clips from a previous topic are never served.
func (e *Engine) Reset() {
	e.playMu.Lock()
	e.player.Stop()
	e.playMu.Unlock()
	e.mu.Lock()
	e.cache.Purge()
	e.flight = new(singleflight.Group)
	e.token = ""
	e.playSeq++
	e.playing = false
	e.lastErr = ""
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) notify() {
	if e.onStatus == nil {
		return
	}
	e.mu.Lock()
	playing, errMsg := e.playing, e.lastErr
	e.mu.Unlock()
	e.onStatus(playing, errMsg)
}
