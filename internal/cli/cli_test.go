package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

const contract = "ARTICLE I\n\nThe Supplier shall indemnify the Customer against all losses.\n\n" +
	"ARTICLE II\n\nThis Agreement runs for two years."

// --- version ---

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lexragctl version dev")
}

// --- chunk ---

func TestChunkCmd_PrintsJSON(t *testing.T) {
	file := writeFile(t, "doc.txt", "[Page 1]\n\n"+contract)

	out, err := run(t, "chunk", file, "--min-tokens", "1", "--target-tokens", "5", "--max-tokens", "50")
	require.NoError(t, err)

	var chunks []domchunk.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 1, c.Metadata.StartPage)
		assert.NotContains(t, c.Content, "[Page 1]")
	}
}

func TestChunkCmd_InvalidConfig(t *testing.T) {
	file := writeFile(t, "doc.txt", contract)

	_, err := run(t, "chunk", file, "--min-tokens", "10", "--max-tokens", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunking config")
}

func TestChunkCmd_EmptyFile(t *testing.T) {
	file := writeFile(t, "empty.txt", "  \n\n")

	out, err := run(t, "chunk", file, "--env", "test")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestChunkCmd_InvalidLogLevel(t *testing.T) {
	file := writeFile(t, "doc.txt", contract)

	_, err := run(t, "chunk", file, "--env", "test", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestChunkCmd_PagesFile(t *testing.T) {
	file := writeFile(t, "doc.txt", contract)
	pages := writeFile(t, "pages.json", `[{"page":3,"offset":0}]`)

	out, err := run(t, "chunk", file, "--pages", pages)
	require.NoError(t, err)

	var chunks []domchunk.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.NotEmpty(t, chunks)
	assert.Equal(t, 3, chunks[0].Metadata.StartPage)
}

func TestChunkCmd_RequiresFile(t *testing.T) {
	_, err := run(t, "chunk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

// --- ingest / search / chunks ---

func TestIngestAndSearch(t *testing.T) {
	cfg := setupCLI(t)
	file := writeFile(t, "msa.txt", contract)

	out, err := run(t, "ingest", file, "--config", cfg, "--env", "test",
		"--tenant", "company-a", "--matter", "matter-a", "--document", "doc-a", "--json")
	require.NoError(t, err)

	var res ingestOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "doc-a", res.DocumentID)
	assert.Positive(t, res.Chunks)
	assert.Equal(t, res.Chunks, res.Embedded)

	out, err = run(t, "search", "indemnification", "--config", cfg, "--env", "test",
		"--tenant", "company-a", "--json")
	require.NoError(t, err)
	var hits []domchunk.Hit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "doc-a", hits[0].DocumentID)

	out, err = run(t, "search", "indemnification", "--config", cfg, "--env", "test",
		"--tenant", "company-b")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")

	out, err = run(t, "chunks", "--config", cfg, "--env", "test", "--tenant", "company-a", "--document", "doc-a")
	require.NoError(t, err)
	var chunks []domchunk.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	assert.Len(t, chunks, res.Chunks)
}

func TestIngest_ForeignMatterRejected(t *testing.T) {
	cfg := setupCLI(t)
	file := writeFile(t, "msa.txt", contract)

	_, err := run(t, "ingest", file, "--config", cfg, "--env", "test",
		"--tenant", "company-a", "--matter", "matter-a", "--document", "doc-a")
	require.NoError(t, err)

	_, err = run(t, "ingest", file, "--config", cfg, "--env", "test",
		"--tenant", "company-b", "--matter", "matter-a", "--document", "doc-a")
	assert.Error(t, err, "another tenant cannot take over an existing matter")
}

func TestIngest_RequiresTenant(t *testing.T) {
	file := writeFile(t, "msa.txt", contract)

	_, err := run(t, "ingest", file, "--document", "doc-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant")
}

func TestIngest_MatterAndClaimExclusive(t *testing.T) {
	file := writeFile(t, "msa.txt", contract)

	_, err := run(t, "ingest", file, "--tenant", "t", "--document", "d", "--matter", "m", "--claim", "c")
	assert.Error(t, err)
}

func TestMigrateCmd(t *testing.T) {
	cfg := setupCLI(t)

	out, err := run(t, "migrate", "--config", cfg, "--env", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date (sqlite)")
}

// --- helpers ---

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n\nb   c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

// --- ingest-batch ---

func TestIngestBatch(t *testing.T) {
	cfg := setupCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(contract), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("Coverage A applies to water damage."), 0o600))
	manifest := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(
		"- tenant: company-a\n"+
			"  document: doc-a\n"+
			"  matter: matter-a\n"+
			"  file: a.txt\n"+
			"- tenant: company-b\n"+
			"  document: doc-b\n"+
			"  claim: claim-b\n"+
			"  file: b.txt\n"), 0o600))

	out, err := run(t, "ingest-batch", manifest, "--config", cfg, "--env", "test", "--json")
	require.NoError(t, err)

	var res []batchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 2)
	assert.Equal(t, "doc-a", res[0].DocumentID)
	assert.Equal(t, "doc-b", res[1].DocumentID)
	for _, r := range res {
		assert.Empty(t, r.Error)
		assert.Positive(t, r.Embedded)
	}
}

func TestIngestBatch_ReportsFailures(t *testing.T) {
	cfg := setupCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(contract), 0o600))
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`[`+
		`{"tenant":"company-a","document":"doc-a","matter":"matter-a","file":"a.txt"},`+
		`{"tenant":"company-a","document":"unregistered","file":"a.txt"}]`), 0o600))

	out, err := run(t, "ingest-batch", manifest, "--config", cfg, "--env", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, out, "OK   doc-a")
	assert.Contains(t, out, "FAIL unregistered")
}
