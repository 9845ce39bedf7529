package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/brightboard-labs/brightboard/internal/protocol"
)

// Service subscribes to learner commands on the bus and forwards them to
// the controller. Commands run in their own goroutines so a slow handler
// never stalls the subscription.
type Service struct {
	controller *Controller
	nc         *nats.Conn
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *nats.Subscription
}

func NewService(controller *Controller, nc *nats.Conn, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		controller: controller,
		nc:         nc,
		logger:     logger.With(slog.String("component", "session-service")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	sub, err := s.nc.Subscribe(protocol.SubjectSessionCommand, s.handleCommand)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("session service started", slog.String("subject", protocol.SubjectSessionCommand))
	return nil
}

func (s *Service) handleCommand(msg *nats.Msg) {
	var cmd protocol.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("malformed command", slog.String("error", err.Error()))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(cmd)
	}()
}

func (s *Service) dispatch(cmd protocol.Command) {
	s.logger.Debug("command received", slog.String("action", cmd.Action))
	switch cmd.Action {
	case protocol.ActionStart:
		s.controller.StartLesson(s.ctx, cmd)
	case protocol.ActionBegin:
		s.controller.BeginLesson(s.ctx)
	case protocol.ActionNext:
		s.controller.Next(s.ctx)
	case protocol.ActionPrev:
		s.controller.Prev(s.ctx)
	case protocol.ActionAnswer:
		s.controller.Answer(s.ctx, cmd.Option)
	case protocol.ActionNextQuestion:
		s.controller.NextQuestion(s.ctx)
	case protocol.ActionRestart:
		s.controller.Restart(s.ctx)
	case protocol.ActionReplay:
		s.controller.ReplayNarration(s.ctx)
	case protocol.ActionToggleView:
		s.controller.ToggleAggregateView(s.ctx)
	case protocol.ActionVideo:
		s.controller.RequestSummaryVideo(s.ctx)
	default:
		s.logger.Warn("unknown action", slog.String("action", cmd.Action))
	}
}

func (s *Service) Healthy() bool {
	return s.sub != nil && s.sub.IsValid()
}

func (s *Service) Close() error {
	s.cancel()
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()
	s.logger.Info("session service stopped")
	return nil
}
