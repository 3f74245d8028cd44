package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/queue"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Append loan events from RabbitMQ to LOAN_LOG_PATH",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = rt.log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := &queue.Consumer{URL: rt.cfg.RabbitMQURL, LogPath: rt.cfg.LoanLogPath, Log: rt.log.Named("consumer")}
		rt.log.Info("consuming loan events", zap.String("queue", queue.LoanQueueName), zap.String("log_path", c.LogPath))
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
