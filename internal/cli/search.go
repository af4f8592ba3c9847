package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexrag/internal/app"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
	retrievaluc "github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

var (
	searchTenant    string
	searchScope     string
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a tenant's chunks by meaning",
	Long: `Embeds the query and returns the tenant's most similar chunks, optionally
restricted to one matter or claim. Results below the similarity threshold are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTenant, "tenant", "", "company id to search within")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "matter or claim id")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "minimum similarity in [0,1] (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	_ = searchCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		threshold := searchThreshold
		if threshold < 0 {
			threshold = a.Config.Retrieval.DefaultThreshold
		}

		hits, err := a.Retrieval.SearchText(ctx, args[0], retrievaluc.SearchRequest{
			TenantID:  searchTenant,
			ScopeID:   searchScope,
			Limit:     searchLimit,
			Threshold: threshold,
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if searchJSON {
			return writeJSON(cmd.OutOrStdout(), hits)
		}
		printHits(cmd.OutOrStdout(), hits)
		return nil
	})
}

func printHits(w io.Writer, hits []domchunk.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "  [%d] %s #%d (%.3f)\n", i+1, h.DocumentID, h.Index, h.Similarity)
		fmt.Fprintf(w, "      %s\n\n", snippet(h.Content, 160))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
