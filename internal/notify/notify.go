// README: Notifier contract and the async dispatch queue.
package notify

import (
	"context"

	"go.uber.org/zap"

	"haven/internal/types"
)

// Receipt summarizes one fan-out: some tokens may be stale or revoked,
// so partial failure is the normal case, not an error.
type Receipt struct {
	Sent   int
	Failed int
}

// Notifier delivers a message to a set of users.
type Notifier interface {
	Notify(ctx context.Context, userIDs []types.ID, title, body string, data map[string]string) (Receipt, error)
}

// Message is one queued fan-out command.
type Message struct {
	UserIDs []types.ID
	Title   string
	Body    string
	Data    map[string]string
}

// Dispatcher decouples write paths from notification delivery: callers
// enqueue and move on, a single worker owns delivery and its failures.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	queue    chan Message
}

func NewDispatcher(notifier Notifier, logger *zap.Logger, depth int) *Dispatcher {
	if depth <= 0 {
		depth = 256
	}
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan Message, depth),
	}
}

// Enqueue hands a message to the worker. It never blocks the caller:
// when the queue is full the message is dropped and logged, because no
// write path is allowed to stall on notification delivery.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			zap.String("title", msg.Title),
			zap.Int("recipients", len(msg.UserIDs)),
		)
	}
}

// Run consumes the queue until ctx is cancelled. Delivery failures are
// logged and swallowed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			receipt, err := d.notifier.Notify(ctx, msg.UserIDs, msg.Title, msg.Body, msg.Data)
			if err != nil {
				d.logger.Warn("notification dispatch failed",
					zap.String("title", msg.Title),
					zap.Error(err),
				)
				continue
			}
			if receipt.Failed > 0 {
				d.logger.Info("notification partially delivered",
					zap.String("title", msg.Title),
					zap.Int("sent", receipt.Sent),
					zap.Int("failed", receipt.Failed),
				)
			}
		}
	}
}
