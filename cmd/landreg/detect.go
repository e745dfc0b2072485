package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	"landreg/pkg/requestcontext"
)

var detectCmd = &cobra.Command{
	Use:   "detect <application-id>...",
	Short: "Run identity and exact-document duplicate detection",
	Long: `Check each application's identity against other applications and
registered parcels, and its documents against exact copies elsewhere.

A failed run is reported and the remaining applications are still processed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetection(cmd, args, func(e *engine) detectFunc { return e.service.DetectAllDuplicates })
	},
}

var scanDocumentsCmd = &cobra.Command{
	Use:   "scan-documents <application-id>...",
	Short: "Run exact-hash and text-content document analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetection(cmd, args, func(e *engine) detectFunc { return e.service.DetectDocumentConflicts })
	},
}

type detectFunc func(context.Context, id.ApplicationID) ([]*models.Conflict, error)

func runDetection(cmd *cobra.Command, args []string, pick func(*engine) detectFunc) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx = withActorFlag(ctx, cmd)
	run := pick(e)

	failed := 0
	for _, arg := range args {
		appID, err := id.ParseApplicationID(arg)
		if err != nil {
			log.ErrorContext(ctx, "skipping argument", "argument", arg, "error", err)
			failed++
			continue
		}
		created, err := run(ctx, appID)
		if err != nil {
			log.ErrorContext(ctx, "detection failed", "application_id", appID, "error", err)
			failed++
			continue
		}
		printConflicts(cmd.OutOrStdout(), appID.String(), created)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(args))
	}
	return nil
}

var actorFlag string

func init() {
	for _, c := range []*cobra.Command{detectCmd, scanDocumentsCmd, resolveCmd} {
		c.Flags().StringVar(&actorFlag, "actor", "", "user ID recorded as the actor in audit entries")
	}
}

// withActorFlag attaches --actor to ctx. An invalid ID is logged and ignored
// so the run is attributed to the system.
func withActorFlag(ctx context.Context, cmd *cobra.Command) context.Context {
	ctx = requestcontext.WithRequestID(ctx, "cli:"+cmd.Name())
	if actorFlag == "" {
		return ctx
	}
	actor, err := id.ParseUserID(actorFlag)
	if err != nil {
		log.WarnContext(ctx, "ignoring --actor", "error", err)
		return ctx
	}
	return requestcontext.WithActor(ctx, actor)
}
