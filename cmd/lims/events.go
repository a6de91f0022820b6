package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/labtrack/lims/pkg/common/kafka"
	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/common/models"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail change events from the events topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is not set")
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.KafkaGroupID)
		defer consumer.Close()

		logger.Log.WithField("topic", cfg.EventsTopic).Info("Tailing change events")
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			logger.Log.WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"data":       event.Data,
				"timestamp":  event.Timestamp,
			}).Info("Change event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
