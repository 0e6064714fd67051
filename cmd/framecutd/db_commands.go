package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/framecut/framecut-backend/internal/exports"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := ctx.open(io.Discard)
			if err != nil {
				return err
			}
			defer a.close()
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", a.cfg.DBPath())
			return nil
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fail export jobs left running by a previous process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := ctx.open(io.Discard)
			if err != nil {
				return err
			}
			defer a.close()

			svc := exports.NewService(a.ledger, a.query, nil, a.registry, a.logger)
			ids, err := svc.Reconcile(commandCtx(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reconciled %d interrupted export job(s)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
