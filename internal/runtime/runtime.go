// Package runtime assembles the daemon: embedded bus, event store,
// generation backends, narration engine, and the session service, plus the
// health and metrics endpoints.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightboard-labs/brightboard/internal/bus"
	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/content"
	"github.com/brightboard-labs/brightboard/internal/eventstore"
	"github.com/brightboard-labs/brightboard/internal/matte"
	"github.com/brightboard-labs/brightboard/internal/narration"
	"github.com/brightboard-labs/brightboard/internal/natsserver"
	"github.com/brightboard-labs/brightboard/internal/protocol"
	"github.com/brightboard-labs/brightboard/internal/session"
	"github.com/brightboard-labs/brightboard/internal/speech"
	"github.com/brightboard-labs/brightboard/internal/video"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *eventstore.Store
	sessionSvc *session.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.natsServer = ns

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	if err := r.startSession(ctx); err != nil {
		r.shutdownComponents()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.shutdownComponents()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// startSession builds the lesson pipeline and subscribes it to the bus.
func (r *Runtime) startSession(ctx context.Context) error {
	source, err := content.NewSource(r.cfg.Content, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build content source: %w", err)
	}
	synth, err := speech.NewSynthesizer(r.cfg.Speech, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build speech synthesizer: %w", err)
	}
	summarizer, err := video.NewSummarizer(r.cfg.Video, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build video summarizer: %w", err)
	}

	player := narration.NewBusPlayer(r.busClient.Conn(), r.logger)
	engine, err := narration.NewEngine(synth, player, narration.Options{
		Voice:      r.cfg.Speech.Voice,
		SampleRate: r.cfg.Speech.SampleRate,
		Channels:   r.cfg.Speech.Channels,
		CacheSize:  r.cfg.Session.ClipCacheSize,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build narration engine: %w", err)
	}
	engine.SetStatusFunc(func(playing bool, errMsg string) {
		status := protocol.NarrationStatus{Playing: playing, Error: errMsg, Timestamp: time.Now().UTC()}
		if err := r.busClient.Publish(protocol.SubjectNarrationStatus, status); err != nil {
			r.logger.Warn("publish narration status", slog.String("error", err.Error()))
		}
	})

	controller := session.NewController(
		r.cfg,
		source,
		engine,
		matte.New(r.cfg.Matte.Threshold),
		summarizer,
		r.busClient,
		r.store,
		r.logger,
	)

	r.sessionSvc = session.NewService(controller, r.busClient.Conn(), r.logger)
	if err := r.sessionSvc.Start(); err != nil {
		return fmt.Errorf("failed to start session service: %w", err)
	}
	return nil
}

func (r *Runtime) shutdownComponents() {
	if r.sessionSvc != nil {
		if err := r.sessionSvc.Close(); err != nil {
			r.logger.Error("session service shutdown error", slog.String("error", err.Error()))
		}
		r.sessionSvc = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
		r.store = nil
	}
	if r.busClient != nil {
		r.busClient.Close()
		r.busClient = nil
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
		r.natsServer = nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.sessionSvc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
