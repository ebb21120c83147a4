package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"kirabridge/internal/domain"
)

const defaultConcurrency = 3

// Handler is what the worker runs for each inbound message. *Pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, in Inbound) (*Reply, error)
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Bus         domain.MessageBus
	Handler     Handler
	Concurrency int // max messages handled in parallel (default 3)
	Logger      *slog.Logger
}

// Worker consumes bus messages, runs them through the handler with bounded
// concurrency and sends each reply back to the originating channel.
type Worker struct {
	bus         domain.MessageBus
	handler     Handler
	concurrency int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		bus:         cfg.Bus,
		handler:     cfg.Handler,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run blocks until ctx is done or the bus is closed, then waits for
// in-flight messages to finish.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("pipeline worker started", "concurrency", w.concurrency)
	defer w.wg.Wait()

	sem := make(chan struct{}, w.concurrency)
	inbound := w.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pipeline worker stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				w.logger.Info("inbound channel closed, pipeline worker stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			w.wg.Add(1)
			go func(m domain.InboundMessage) {
				defer w.wg.Done()
				defer func() { <-sem }()
				w.process(ctx, m)
			}(msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg domain.InboundMessage) {
	w.logger.Debug("processing message", "channel", msg.Channel, "chat", msg.ChatID, "sender", msg.SenderID)

	out := domain.OutboundMessage{
		ID:       msg.ID,
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Format:   "markdown",
	}

	reply, err := w.handler.Handle(ctx, Inbound{
		Payload:   msg.Payload,
		Hint:      msg.Hint,
		SourceTag: msg.SourceTag,
		Persona:   msg.Persona,
	})
	switch {
	case err == nil:
		out.Content = reply.Text
	case errors.Is(err, context.Canceled):
		return
	case domain.IsRejection(err):
		w.logger.Warn("message rejected", "channel", msg.Channel, "err", err)
		out.Content = "Sorry, I could not read that message: " + err.Error()
		out.Error = true
	default:
		w.logger.Error("message processing failed", "channel", msg.Channel, "err", err)
		out.Content = "Sorry, I encountered an error processing your message."
		out.Error = true
	}
	w.bus.SendOutbound(out)
}
