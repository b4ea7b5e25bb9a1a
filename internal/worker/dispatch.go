package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ikpa/internal/amqp"
)

// Dispatcher sends jobs to the queue, or runs them in-process when no
// publisher is configured.
type Dispatcher struct {
	publisher amqp.Publisher
	worker    *Worker
}

func NewDispatcher(publisher amqp.Publisher, worker *Worker) *Dispatcher {
	return &Dispatcher{publisher: publisher, worker: worker}
}

// Dispatch reports queued=true when the job went to the broker and false
// when it already ran inline.
func (d *Dispatcher) Dispatch(ctx context.Context, job amqp.Job) (queued bool, err error) {
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, job); err != nil {
			return false, fmt.Errorf("enqueue %s: %w", job.Type, err)
		}
		return true, nil
	}

	slog.DebugContext(ctx, "Running job inline", "component", "worker", "job_type", job.Type, "user_id", job.UserID)
	if err := d.worker.handle(ctx, job); err != nil {
		return false, err
	}
	return false, nil
}
