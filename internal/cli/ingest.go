package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexrag/internal/app"
	ingestuc "github.com/kailas-cloud/lexrag/internal/usecase/ingest"
)

var (
	ingestTenant    string
	ingestDocument  string
	ingestMatter    string
	ingestClaim     string
	ingestTitle     string
	ingestPagesFile string
	ingestJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Chunk, embed and store a document",
	Long: `Chunks a text file, embeds every chunk and stores the vectors for the tenant.
With --matter or --claim the container and document are registered first; without
them the document must already exist. Re-ingesting replaces the previous chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "company id that owns the document")
	ingestCmd.Flags().StringVar(&ingestDocument, "document", "", "document id")
	ingestCmd.Flags().StringVar(&ingestMatter, "matter", "", "register the document under this matter")
	ingestCmd.Flags().StringVar(&ingestClaim, "claim", "", "register the document under this claim")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestCmd.Flags().StringVar(&ingestPagesFile, "pages", "", "JSON file with page boundaries")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	_ = ingestCmd.MarkFlagRequired("tenant")
	_ = ingestCmd.MarkFlagRequired("document")
	ingestCmd.MarkFlagsMutuallyExclusive("matter", "claim")
	rootCmd.AddCommand(ingestCmd)
}

type ingestOutput struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Embedded   int    `json:"embedded"`
	Tokens     int    `json:"tokens"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(filepath.Clean(args[0]))
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	pages, err := readPages(ingestPagesFile)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := registerDocument(ctx, a); err != nil {
			return err
		}

		res, err := a.Ingest.ProcessDocument(ctx, ingestuc.Request{
			TenantID:   ingestTenant,
			DocumentID: ingestDocument,
			Text:       string(text),
			Pages:      pages,
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", ingestDocument, err)
		}

		out := ingestOutput{DocumentID: res.DocumentID, Chunks: res.Chunks, Embedded: res.Embedded, Tokens: res.Tokens}
		if ingestJSON {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s: %d chunks, %d embedded, %d tokens\n",
			out.DocumentID, out.Chunks, out.Embedded, out.Tokens)
		return nil
	})
}

// registerDocument creates the container and document when --matter or --claim is set.
// Existing rows keep their owner; a foreign container fails the ownership check later.
func registerDocument(ctx context.Context, a *app.App) error {
	return registerEntry(ctx, a, manifestEntry{
		Tenant:   ingestTenant,
		Document: ingestDocument,
		Matter:   ingestMatter,
		Claim:    ingestClaim,
		Title:    ingestTitle,
	})
}
