package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lexrag/internal/app"
	"github.com/kailas-cloud/lexrag/internal/domain"
	ingestuc "github.com/kailas-cloud/lexrag/internal/usecase/ingest"
)

var ingestBatchJSON bool

var ingestBatchCmd = &cobra.Command{
	Use:   "ingest-batch [manifest]",
	Short: "Ingest many documents concurrently",
	Long: `Reads a YAML (or JSON) manifest of documents and ingests them with bounded
concurrency. Each entry has tenant, document, matter or claim, title and file;
relative file paths resolve against the manifest's directory. One failing document does not stop
the others; the command fails if any document failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestBatch,
}

func init() {
	ingestBatchCmd.Flags().BoolVar(&ingestBatchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(ingestBatchCmd)
}

type manifestEntry struct {
	Tenant   string `yaml:"tenant"`
	Document string `yaml:"document"`
	Matter   string `yaml:"matter"`
	Claim    string `yaml:"claim"`
	Title    string `yaml:"title"`
	File     string `yaml:"file"`
}

type batchOutput struct {
	ingestOutput
	Error string `json:"error,omitempty"`
}

func readManifest(path string) ([]manifestEntry, []ingestuc.Request, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}

	base := filepath.Dir(path)
	reqs := make([]ingestuc.Request, len(entries))
	for i, e := range entries {
		file := e.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		text, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d: read %s: %w", i, e.File, err)
		}
		reqs[i] = ingestuc.Request{TenantID: e.Tenant, DocumentID: e.Document, Text: string(text)}
	}
	return entries, reqs, nil
}

func runIngestBatch(cmd *cobra.Command, args []string) error {
	entries, reqs, err := readManifest(args[0])
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		for _, e := range entries {
			if err := registerEntry(ctx, a, e); err != nil {
				return err
			}
		}

		results := a.Ingest.ProcessMany(ctx, reqs)

		out := make([]batchOutput, len(results))
		failed := 0
		for i, r := range results {
			out[i] = batchOutput{ingestOutput: ingestOutput{
				DocumentID: r.DocumentID, Chunks: r.Chunks, Embedded: r.Embedded, Tokens: r.Tokens,
			}}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
				failed++
			}
		}

		if ingestBatchJSON {
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
		} else {
			for _, o := range out {
				if o.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %s\n", o.DocumentID, o.Error)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK   %s: %d chunks, %d embedded\n", o.DocumentID, o.Chunks, o.Embedded)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(results))
		}
		return nil
	})
}

func registerEntry(ctx context.Context, a *app.App, e manifestEntry) error {
	if e.Matter != "" && e.Claim != "" {
		return domain.Validationf("document %s: matter and claim are mutually exclusive", e.Document)
	}
	doc := domain.Document{ID: e.Document, Title: e.Title}
	switch {
	case e.Matter != "":
		if err := a.Catalog.UpsertMatter(ctx, domain.Matter{ID: e.Matter, CompanyID: e.Tenant}); err != nil {
			return fmt.Errorf("register matter %s: %w", e.Matter, err)
		}
		doc.MatterID = e.Matter
	case e.Claim != "":
		if err := a.Catalog.UpsertClaim(ctx, domain.Claim{ID: e.Claim, CompanyID: e.Tenant}); err != nil {
			return fmt.Errorf("register claim %s: %w", e.Claim, err)
		}
		doc.ClaimID = e.Claim
	default:
		return nil
	}
	if err := a.Catalog.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("register document %s: %w", e.Document, err)
	}
	return nil
}
