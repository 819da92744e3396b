package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pixelbatch/internal/logging"
	"pixelbatch/internal/notifications"
	"pixelbatch/internal/queue"
)

// notify publishes an event. Delivery failures are logged and never fail the
// batch.
func (a *app) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := a.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(a.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// watchBatches announces batches driven through the HTTP API: a start when the
// queue begins processing and a completion when it settles.
func (a *app) watchBatches(ctx context.Context) {
	events, unsubscribe := a.store.Subscribe(64)
	defer unsubscribe()

	prev := a.store.Snapshot().ConversionStatus
	var started time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			status := ev.State.ConversionStatus
			if status == prev {
				continue
			}
			switch {
			case status == queue.ConversionProcessing && prev != queue.ConversionPaused:
				started = time.Now()
				a.notify(ctx, notifications.EventBatchStarted, notifications.Payload{
					"count":  len(ev.State.Items),
					"format": ev.State.OutputFormat.String(),
				})
			case status == queue.ConversionComplete || status == queue.ConversionError:
				counts := ev.State.Counts()
				a.notify(ctx, notifications.EventBatchCompleted, notifications.Payload{
					"done":    counts.Done,
					"failed":  counts.Error,
					"elapsed": time.Since(started),
				})
			}
			prev = status
		}
	}
}

func newNotifyTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not set")
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
