package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the database schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				if err := b.Migrate(ctx); err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]bool{"migrated": true})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

// NewReconcileCommand creates the reconcile command. It exits non-zero when any
// counter disagrees with its ledger.
func NewReconcileCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:          "reconcile",
		Short:        "Compare stock counters with the inventory ledger",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				found, err := b.Reconcile(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.Format == "json" {
					if err := writeJSON(out, found); err != nil {
						return err
					}
				} else if len(found) == 0 {
					fmt.Fprintln(out, "all stock counters match the ledger")
				} else {
					for _, d := range found {
						fmt.Fprintf(out, "variant %d (%s): inventory=%d ledger=%d last_log=%d\n",
							d.VariantID, d.SKU, d.Inventory, d.LedgerStock, d.LastLogID)
					}
				}

				if len(found) > 0 {
					return fmt.Errorf("%d variant(s) out of step with the ledger", len(found))
				}
				return nil
			})
		},
	}
}

// NewSetStockCommand creates the set-stock command.
func NewSetStockCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	var adminID int64

	cmd := &cobra.Command{
		Use:          "set-stock <variant-id> <stock>",
		Short:        "Set a variant's stock through the ledger",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid variant id %q", args[0])
			}
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid stock %q", args[1])
			}

			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				update, err := b.SetStock(ctx, adminID, variantID, value)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), update)
				}
				if update.Log == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "variant %d already at %d\n", variantID, update.Current)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "variant %d: %d -> %d (log %d)\n",
					variantID, update.Previous, update.Current, update.Log.ID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&adminID, "admin", 0, "id of the admin user making the change")
	_ = cmd.MarkFlagRequired("admin")

	return cmd
}
