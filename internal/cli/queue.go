package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/queue"
)

// newQueueCmd creates the queue management command.
func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the email queue",
	}

	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueStatsCmd())
	cmd.AddCommand(newQueueRetryCmd())
	cmd.AddCommand(newQueueDeleteCmd())
	cmd.AddCommand(newQueueSendCmd())

	return cmd
}

// openStore opens the configured queue store. The caller must Close it.
func openStore(ctx context.Context) (queue.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.OpenStore(ctx)
}

// newQueueListCmd creates the "queue list" subcommand.
func newQueueListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			f := queue.Filters{Limit: limit}
			if status != "" {
				f.Status = queue.Status(status)
				if !queue.ValidStatus(f.Status) {
					return fmt.Errorf("unknown status %q (pending, sending, sent, failed)", status)
				}
			}

			items, err := store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				printInfo("Queue is empty")
				return nil
			}

			for _, item := range items {
				fmt.Printf("%s  %s  %s <%s>  %s\n",
					StyleDim.Render(item.ID),
					statusStyle(item.Status).Render(string(item.Status)),
					StyleValue.Render(item.RecipientName),
					item.RecipientEmail,
					StyleDim.Render(item.CreatedAt.Local().Format("2006-01-02 15:04")))
				if item.ErrorMessage != "" {
					printDetail("error: %s", item.ErrorMessage)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, sending, sent, failed")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of items (0 = all)")

	return cmd
}

// newQueueStatsCmd creates the "queue stats" subcommand.
func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-status queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printQueueStats(stats)
			return nil
		},
	}
}

// newQueueRetryCmd creates the "queue retry" subcommand: put a failed item
// back into the pending state.
func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]",
		Short: "Reset a failed email to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpdateStatus(cmd.Context(), args[0], queue.StatusPending, ""); err != nil {
				return err
			}
			printSuccess("Reset %s to pending", args[0])
			printNextStep("Send it", "certforge queue send")
			return nil
		},
	}
}

// newQueueDeleteCmd creates the "queue delete" subcommand.
func newQueueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Remove an email from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess("Deleted %s", args[0])
			return nil
		},
	}
}

// newQueueSendCmd creates the "queue send" subcommand: deliver every
// pending email through the configured webhook.
func newQueueSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Deliver all pending emails through the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Delivery.WebhookURL == "" {
				return errors.New(errors.ErrCodeUnsupported, "no delivery webhook configured (set delivery.webhook_url)")
			}

			store, err := cfg.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := loggerFromContext(ctx)
			prog := newProgress(logger)

			spinner := newSpinnerWithContext(ctx, "Sending queued emails...")
			spinner.Start()
			sender := queue.NewSender(store, queue.NewWebhook(cfg.Delivery.WebhookURL), cfg.Delivery.Delay())
			report, err := sender.ProcessPending(ctx)
			spinner.Stop()
			if err != nil {
				return err
			}

			if report.Attempted == 0 {
				printInfo("Nothing pending")
				return nil
			}
			prog.done(fmt.Sprintf("Sent %d of %d emails", report.Sent, report.Attempted))
			printSuccess("Sent %d emails", report.Sent)
			if report.Failed > 0 {
				printWarning("%d deliveries failed", report.Failed)
				printNextStep("Inspect failures", "certforge queue list --status failed")
			}
			return nil
		},
	}
}
