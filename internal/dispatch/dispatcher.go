package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/queue"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
)

// Task is the wire payload carried on the dispatch queue. One task per
// uploaded document.
type Task struct {
	DocumentID int64 `json:"document_id"`
}

func DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("failed to decode dispatch task: %w", err)
	}
	if t.DocumentID == 0 {
		return Task{}, fmt.Errorf("dispatch task carries no document id")
	}
	return t, nil
}

// Dispatcher hands a document id to the pipeline. Implementations differ in
// where the pipeline runs: on a queue consumer or inline in the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID int64) error
}

// Runner is the pipeline entry point a DirectDispatcher invokes inline.
type Runner interface {
	Run(ctx context.Context, documentID int64) error
}

// QueueDispatcher publishes tasks for asynchronous, at-least-once delivery.
type QueueDispatcher struct {
	queue *queue.Queue
}

func NewQueueDispatcher(q *queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, documentID int64) error {
	_, err := d.queue.PublishJSON(ctx, Task{DocumentID: documentID}, nil)
	if err != nil {
		return fmt.Errorf("failed to enqueue document %d: %w", documentID, err)
	}
	return nil
}

// DirectDispatcher runs the pipeline synchronously in the caller.
type DirectDispatcher struct {
	runner Runner
}

func NewDirectDispatcher(runner Runner) *DirectDispatcher {
	return &DirectDispatcher{runner: runner}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, documentID int64) error {
	return d.runner.Run(ctx, documentID)
}

// FallbackDispatcher tries the primary dispatcher and falls back to the
// secondary when the primary is unavailable. Intake composes a queue-backed
// primary with a direct secondary so an unreachable broker degrades to
// synchronous processing instead of surfacing to the uploader.
type FallbackDispatcher struct {
	primary   Dispatcher
	secondary Dispatcher
}

func NewFallbackDispatcher(primary, secondary Dispatcher) *FallbackDispatcher {
	return &FallbackDispatcher{
		primary:   primary,
		secondary: secondary,
	}
}

func (d *FallbackDispatcher) Dispatch(ctx context.Context, documentID int64) error {
	err := d.primary.Dispatch(ctx, documentID)
	if err == nil {
		return nil
	}

	logger.Warn("primary dispatch failed, falling back", "document_id", documentID, "error", err)
	return d.secondary.Dispatch(ctx, documentID)
}
