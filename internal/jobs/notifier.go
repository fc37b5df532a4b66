package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/kiranahub/backend-pos/internal/events"
)

// EventNotifier forwards bus events onto the task queue so the worker can
// fan out notifications without blocking the request path.
type EventNotifier struct {
	Client *asynq.Client
	Queue  string
}

// Notify implements events.Notifier.
func (n EventNotifier) Notify(ctx context.Context, event events.Event) error {
	if n.Client == nil {
		return nil
	}
	switch event.Topic {
	case events.TopicOrderPaid, events.TopicOrderDelivered:
		task, err := NewOrderNotifyTask(event.AggregateID, event.Topic, n.Queue)
		if err != nil {
			return err
		}
		_, err = n.Client.EnqueueContext(ctx, task)
		return err
	default:
		return nil
	}
}
