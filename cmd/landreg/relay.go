package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"landreg/internal/platform/kafka"
	"landreg/internal/platform/postgres"
	"landreg/pkg/platform/audit/outbox"
	auditpostgres "landreg/pkg/platform/audit/store/postgres"
)

var relayOnce bool

var relayAuditCmd = &cobra.Command{
	Use:   "relay-audit",
	Short: "Publish pending audit outbox entries to Kafka",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("no Kafka brokers configured (KAFKA_BROKERS)")
		}
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}

		relay := outbox.NewRelay(auditpostgres.New(db), producer, cfg.Kafka.AuditTopic,
			outbox.WithBatchSize(cfg.Kafka.RelayBatchSize),
			outbox.WithInterval(cfg.Kafka.RelayInterval),
			outbox.WithLogger(log),
		)
		if relayOnce {
			n, err := relay.RelayOnce(ctx)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ relayed %d audit entries\n", n)
			return nil
		}
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	relayAuditCmd.Flags().BoolVar(&relayOnce, "once", false, "relay one batch and exit")
}
