package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexrag/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", a.Config.Database.Driver)
			return nil
		}, app.WithMigrate())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
