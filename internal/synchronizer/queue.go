package synchronizer

import (
	"context"
	"fmt"

	"github.com/vk/hotsync/internal/changeset"
	"github.com/vk/hotsync/internal/ctxlog"
)

// Enqueue schedules cs for the Run worker. It does not block; a full queue
// returns ErrQueueFull and the change set is dropped.
func (s *Synchronizer) Enqueue(ctx context.Context, cs changeset.ChangeSet) error {
	select {
	case s.queue <- cs:
		s.recorder.QueueDepth(len(s.queue))
		return nil
	default:
		ctxlog.FromContext(ctx).Warn("Reconcile queue full, dropping change set.", "batch", cs.Batch())
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, cap(s.queue))
	}
}

// HandleEvent decodes a hot_reload_update payload and enqueues it.
// Malformed payloads are logged, counted and rejected without a run.
func (s *Synchronizer) HandleEvent(ctx context.Context, payload []byte) error {
	logger := ctxlog.FromContext(ctx)

	n, err := changeset.Parse(payload)
	if err != nil {
		s.recorder.MalformedNotification()
		logger.Warn("Ignoring malformed change notification.", "error", err)
		return err
	}
	logger.Debug("Change notification received.",
		"module", n.Module,
		"action", n.Action,
		"file", n.File,
		"added", len(n.Changes.Added),
		"updated", len(n.Changes.Updated),
		"removed", len(n.Changes.Removed),
	)
	return s.Enqueue(ctx, n.Changes)
}

// Run drains the queue one change set at a time until ctx is cancelled.
// A run that has started is not interrupted by the cancellation.
func (s *Synchronizer) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Synchronizer worker started.")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Synchronizer worker stopped.", "pending", len(s.queue))
			return nil
		case cs := <-s.queue:
			s.recorder.QueueDepth(len(s.queue))
			report := s.Handle(context.WithoutCancel(ctx), cs)
			if s.onReport != nil {
				s.onReport(report)
			}
		}
	}
}
