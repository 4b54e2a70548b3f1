// Package cli implements storectl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Backend is what the commands operate on
type Backend interface {
	Migrate(ctx context.Context) error
	Reconcile(ctx context.Context) ([]models.StockDiscrepancy, error)
	SetStock(ctx context.Context, adminID, variantID int64, value int) (*service.StockUpdate, error)
	Close() error
}

// BackendFactory opens a Backend when a command runs
type BackendFactory func(ctx context.Context) (Backend, error)

// NewRootCommand creates the root command for storectl.
func NewRootCommand(open BackendFactory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storectl",
		Short: "Storefront operations",
		Long:  "Maintenance commands for the storefront database, stock ledger and caches.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts, open))
	cmd.AddCommand(NewReconcileCommand(opts, open))
	cmd.AddCommand(NewSetStockCommand(opts, open))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withBackend opens the backend for the length of fn
func withBackend(cmd *cobra.Command, open BackendFactory, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
