package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pocketbase/pocketbase/core"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"typerace/internal/services"
)

// QuoteImporter stores seed quotes, merging categories of quotes that are
// already present.
type QuoteImporter interface {
	ImportQuotes(ctx context.Context, entries []services.SeedQuote) (created, updated int, err error)
}

// NewSeedQuotesCommand returns the `seed-quotes <file>` command. The file holds
// a JSON array of {"Quote", "Author", "Category"} objects where Category is a
// comma separated list.
func NewSeedQuotesCommand(app core.App, importer QuoteImporter) *cobra.Command {
	return &cobra.Command{
		Use:          "seed-quotes <file>",
		Short:        "Import race quotes from a JSON file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ReadSeedFile(args[0])
			if err != nil {
				return err
			}

			if err := app.RunAllMigrations(); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			created, updated, err := importer.ImportQuotes(ctx, entries)
			if err != nil {
				return err
			}

			cmd.Printf("Imported %d quotes (%d new, %d updated)\n", created+updated, created, updated)
			return nil
		},
	}
}

func ReadSeedFile(path string) ([]services.SeedQuote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var entries []services.SeedQuote
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return entries, nil
}
