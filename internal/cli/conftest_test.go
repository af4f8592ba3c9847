package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/app"
	"github.com/kailas-cloud/lexrag/internal/config"
	"github.com/kailas-cloud/lexrag/internal/domain"
)

// keywordEmbedder maps texts mentioning indemnity onto one axis and everything else onto another.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	v := []float32{0, 1, 0}
	if strings.Contains(strings.ToLower(text), "indemn") {
		v = []float32{1, 0, 0}
	}
	return domain.EmbeddingResult{Embedding: v, Model: "fake-model", TotalTokens: 2}, nil
}

const testConfigYAML = `
http:
  port: 8081
database:
  driver: sqlite
  dsn: %s
  migrate_on_start: true
embedding:
  providers:
    fake: {}
  vectorizers:
    fake:
      provider: fake
      model: fake-model
      dimensions: 3
retrieval:
  default_threshold: 0.5
`

// setupCLI writes a config for a temp SQLite database and injects the fake embedder.
// It returns the path of the config file.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	body := fmt.Sprintf(testConfigYAML, filepath.Join(dir, "lexrag.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	oldOpen := openApp
	openApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...app.Option) (*app.App, error) {
		opts = append(opts, app.WithEmbedders(keywordEmbedder{}, keywordEmbedder{}))
		return app.New(ctx, cfg, logger, opts...)
	}
	t.Cleanup(func() { openApp = oldOpen })
	return path
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag to its default so package-level values do not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
