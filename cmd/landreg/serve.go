package main

import (
	"github.com/spf13/cobra"

	"landreg/internal/platform/httpserver"
	platformmetrics "landreg/internal/platform/metrics"
	httptransport "landreg/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		router := httptransport.NewRouter(
			httptransport.NewHandler(e.service, log),
			httptransport.WithRequestMetrics(platformmetrics.New()),
			httptransport.WithReadiness(e.ready),
			httptransport.WithRouterLogger(log),
		)
		srv := httpserver.New(cfg.Server.Addr, router)
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	},
}
