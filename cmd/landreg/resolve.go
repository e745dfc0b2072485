package main

import (
	"fmt"

	"github.com/spf13/cobra"

	id "landreg/pkg/domain"
	"landreg/pkg/requestcontext"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Mark a conflict resolved",
	Long: `Mark a conflict resolved. The resolving user defaults to --actor.
Resolving an already resolved conflict succeeds without changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conflictID, err := id.ParseConflictID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		ctx = withActorFlag(ctx, cmd)

		var resolvedBy *id.UserID
		if actor := requestcontext.Actor(ctx); !actor.IsNil() {
			resolvedBy = &actor
		}
		ok, err := e.service.ResolveDuplicate(ctx, conflictID, resolvedBy)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("conflict %s not found", conflictID)
		}
		okColor.Fprintf(cmd.OutOrStdout(), "✓ conflict %s resolved\n", conflictID)
		return nil
	},
}
