package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexrag/internal/chunking"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
	logpkg "github.com/kailas-cloud/lexrag/internal/logger"
)

var (
	chunkMinTokens       int
	chunkTargetTokens    int
	chunkMaxTokens       int
	chunkOverlap         int
	chunkPreserveMarkers bool
	chunkNoHeaders       bool
	chunkPagesFile       string
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Split a text file into chunks",
	Long: `Splits extracted document text into token-bounded chunks and prints them as JSON.
Page numbers come from --pages (a JSON array of {"page","offset"}) or, when absent,
from "[Page N]" markers in the text. No database or provider is contacted.`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkMinTokens, "min-tokens", chunking.DefaultMinTokens, "minimum chunk size")
	chunkCmd.Flags().IntVar(&chunkTargetTokens, "target-tokens", chunking.DefaultTargetTokens, "target chunk size")
	chunkCmd.Flags().IntVar(&chunkMaxTokens, "max-tokens", chunking.DefaultMaxTokens, "maximum chunk size")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", chunking.DefaultOverlapParagraphs,
		"paragraphs carried into the next chunk")
	chunkCmd.Flags().BoolVar(&chunkPreserveMarkers, "preserve-markers", false, "keep [Page N] markers in content")
	chunkCmd.Flags().BoolVar(&chunkNoHeaders, "no-headers", false, "disable section header detection")
	chunkCmd.Flags().StringVar(&chunkPagesFile, "pages", "", "JSON file with page boundaries")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	logger, err := logpkg.NewLogger(resolveEnv(), logLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	engine, err := chunking.New(chunking.Config{
		MinTokens:           chunkMinTokens,
		TargetTokens:        chunkTargetTokens,
		MaxTokens:           chunkMaxTokens,
		OverlapParagraphs:   chunkOverlap,
		PreservePageMarkers: chunkPreserveMarkers,
		DetectHeaders:       !chunkNoHeaders,
	})
	if err != nil {
		return fmt.Errorf("chunking config: %w", err)
	}
	engine = engine.WithLogger(logger)

	text, err := os.ReadFile(filepath.Clean(args[0]))
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	pages, err := readPages(chunkPagesFile)
	if err != nil {
		return err
	}

	chunks := engine.Chunk(chunking.Input{Text: string(text), Pages: pages})
	return writeJSON(cmd.OutOrStdout(), chunks)
}

func readPages(path string) ([]domchunk.PageBoundary, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read pages %s: %w", path, err)
	}
	var pages []domchunk.PageBoundary
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parse pages %s: %w", path, err)
	}
	return pages, nil
}
