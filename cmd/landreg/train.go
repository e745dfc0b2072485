package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"landreg/internal/classifier"
	detectionmetrics "landreg/internal/detection/metrics"
	"landreg/internal/platform/objectstore"
	"landreg/internal/platform/postgres"
	"landreg/internal/platform/tracing"
	"landreg/internal/registry/store"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the conflict classifier on synthesized parcel scenarios",
	Long: `Train the conflict classifier from registered parcels. Parcels are only
read. The model and the synthesized dataset are written to the object store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		objects, err := objectstore.New(cfg.ObjectStore)
		if err != nil {
			return err
		}
		trainer := classifier.NewTrainer(store.NewPostgres(db), objects, cfg.Training,
			classifier.WithLogger(log),
			classifier.WithMetrics(detectionmetrics.New()),
			classifier.WithTracer(tracing.Tracer()),
		)
		report, err := trainer.Train(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		okColor.Fprintf(out, "✓ trained on %d parcels (%d samples, %d train / %d test)\n",
			report.Parcels, report.Samples, report.TrainSize, report.TestSize)
		fmt.Fprintf(out, "  accuracy: %.4f\n", report.Accuracy)
		dimColor.Fprintf(out, "  model:    %s\n  dataset:  %s\n", report.ModelLocation, report.DatasetLocation)
		return nil
	},
}
