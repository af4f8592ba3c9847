package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexrag/internal/app"
)

var (
	chunksTenant   string
	chunksDocument string
	chunksVectors  bool
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Show a document's stored chunks",
	Long: `Prints a tenant-owned document's chunks in order as JSON. With --vectors the
stored embeddings are printed instead.`,
	Args: cobra.NoArgs,
	RunE: runChunks,
}

func init() {
	chunksCmd.Flags().StringVar(&chunksTenant, "tenant", "", "company id that owns the document")
	chunksCmd.Flags().StringVar(&chunksDocument, "document", "", "document id")
	chunksCmd.Flags().BoolVar(&chunksVectors, "vectors", false, "print embeddings instead of chunks")
	_ = chunksCmd.MarkFlagRequired("tenant")
	_ = chunksCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(chunksCmd)
}

func runChunks(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if chunksVectors {
			embs, err := a.Retrieval.GetEmbeddings(ctx, chunksDocument, chunksTenant)
			if err != nil {
				return fmt.Errorf("get embeddings: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), embs)
		}

		chunks, err := a.Retrieval.ListChunks(ctx, chunksDocument, chunksTenant)
		if err != nil {
			return fmt.Errorf("list chunks: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), chunks)
	})
}
