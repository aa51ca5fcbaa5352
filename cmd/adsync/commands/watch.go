package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/adlibrary-sync/internal/events"
)

var watchGroup string

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print NEW_RECORD_DETECTED events from the Redis stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required to watch events")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "failed to connect to redis")
		}

		hostname, _ := os.Hostname()
		out := cmd.OutOrStdout()
		consumer := events.NewConsumer(client, events.ConsumerConfig{
			Group:    watchGroup,
			Consumer: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		}, func(_ context.Context, p events.NewRecordDetectedPayload) error {
			_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", p.Timestamp.Format("2006-01-02T15:04:05Z07:00"), p.CollectionID, p.RecordID)
			return err
		}, log)

		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	WatchCmd.Flags().StringVar(&watchGroup, "group", "adsync-watchers", "Redis consumer group")
}
