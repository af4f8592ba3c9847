package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// para builds a 5-word paragraph of 29 chars (7 tokens) keyed by letter.
func para(letter byte) string {
	w := string(letter) + "xxxx"
	return strings.TrimSpace(strings.Repeat(w+" ", 5))
}

func mustEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func assertStructure(t *testing.T, text string, chunks []chunk.Chunk) {
	t.Helper()
	if err := chunk.Validate(chunks); err != nil {
		t.Fatalf("invalid chunk list: %v", err)
	}
	for i, c := range chunks {
		if c.EndChar > len(text) {
			t.Errorf("chunk %d end %d beyond text length %d", i, c.EndChar, len(text))
		}
		if i > 0 && c.StartChar < chunks[i-1].StartChar {
			t.Errorf("chunk %d start %d before previous start %d", i, c.StartChar, chunks[i-1].StartChar)
		}
		if strings.TrimSpace(c.Content) == "" {
			t.Errorf("chunk %d has empty content", i)
		}
	}
}

// --- Scenarios ---

func TestChunk_HeaderBecomesSection(t *testing.T) {
	text := "ARTICLE I\n\nThis is the first clause of the agreement with sufficient words to pass " +
		"minimum size threshold easily for testing purposes here now."
	e := mustEngine(t, DefaultConfig())

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	md := chunks[0].Metadata
	if md.SectionName() != "ARTICLE I" {
		t.Errorf("section = %q, want ARTICLE I", md.SectionName())
	}
	if !md.HasSectionHeader {
		t.Error("expected has_section_header")
	}
	if md.ParagraphCount != 2 {
		t.Errorf("paragraph_count = %d, want 2", md.ParagraphCount)
	}
	if md.StartPage != 1 || md.EndPage != 1 {
		t.Errorf("pages = %d-%d, want 1-1", md.StartPage, md.EndPage)
	}
	assertStructure(t, text, chunks)
}

func TestChunk_UnsplittableParagraph(t *testing.T) {
	// ~2000 tokens, no blank lines.
	text := strings.TrimSpace(strings.Repeat("indemnify ", 800))
	e := mustEngine(t, DefaultConfig())

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if want := EstimateTokens(text); chunks[0].TokenCount != want {
		t.Errorf("token_count = %d, want %d", chunks[0].TokenCount, want)
	}
	if chunks[0].TokenCount <= DefaultMaxTokens {
		t.Errorf("expected oversized chunk, got %d tokens", chunks[0].TokenCount)
	}
	if chunks[0].StartChar != 0 || chunks[0].EndChar != len(text) {
		t.Errorf("span = [%d,%d), want [0,%d)", chunks[0].StartChar, chunks[0].EndChar, len(text))
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	for _, text := range []string{"", "   \n\n\t  "} {
		chunks := e.Chunk(Input{Text: text})
		if chunks == nil || len(chunks) != 0 {
			t.Errorf("Chunk(%q) = %v, want empty non-nil list", text, chunks)
		}
	}
}

func TestChunk_OnlyPageMarkers(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	if chunks := e.Chunk(Input{Text: "[Page 1]\n\n[Page 2]"}); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

// --- Size bounds ---

func TestChunk_SplitsBeforeMax(t *testing.T) {
	cfg := Config{MinTokens: 10, TargetTokens: 20, MaxTokens: 30}
	e := mustEngine(t, cfg)

	paras := make([]string, 8)
	for i := range paras {
		paras[i] = para(byte('a' + i))
	}
	text := strings.Join(paras, "\n\n")

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.TokenCount > cfg.MaxTokens {
			t.Errorf("chunk %d has %d tokens, max %d", i, c.TokenCount, cfg.MaxTokens)
		}
		if i < len(chunks)-1 && c.TokenCount < cfg.MinTokens {
			t.Errorf("non-final chunk %d has %d tokens, min %d", i, c.TokenCount, cfg.MinTokens)
		}
	}
	if chunks[0].Metadata.ParagraphCount != 4 {
		t.Errorf("chunk 0 paragraph_count = %d, want 4", chunks[0].Metadata.ParagraphCount)
	}
	assertStructure(t, text, chunks)
}

func TestChunk_EveryChunkWithinBoundsUnlessSingleParagraph(t *testing.T) {
	cfg := Config{MinTokens: 20, TargetTokens: 40, MaxTokens: 60, OverlapParagraphs: 1, DetectHeaders: true}
	e := mustEngine(t, cfg)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		if i%7 == 0 {
			fmt.Fprintf(&b, "SECTION %d\n\n", i/7+1)
		}
		words := 3 + (i*5)%17
		b.WriteString(strings.TrimSpace(strings.Repeat("clause ", words)))
		b.WriteString("\n\n")
	}
	text := b.String()

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		// Only a carried paragraph plus the one that closed the previous chunk may run over.
		if c.TokenCount > cfg.MaxTokens && c.Metadata.ParagraphCount > cfg.OverlapParagraphs+1 {
			t.Errorf("chunk %d has %d tokens over max with %d paragraphs",
				i, c.TokenCount, c.Metadata.ParagraphCount)
		}
		if i < len(chunks)-1 && c.TokenCount < cfg.MinTokens {
			t.Errorf("non-final chunk %d has %d tokens, min %d", i, c.TokenCount, cfg.MinTokens)
		}
	}
	assertStructure(t, text, chunks)
}

func TestChunk_EveryParagraphSurvives(t *testing.T) {
	cfg := Config{MinTokens: 10, TargetTokens: 20, MaxTokens: 30, OverlapParagraphs: 1, DetectHeaders: true}
	e := mustEngine(t, cfg)

	var b strings.Builder
	for i := 0; i < 24; i++ {
		switch {
		case i%6 == 0:
			fmt.Fprintf(&b, "[Page %d]\n\nARTICLE %d\n\n", i/6+1, i/6+1)
		case i%5 == 0:
			b.WriteString("[Page 9] ")
		}
		b.WriteString(strings.TrimSpace(strings.Repeat(fmt.Sprintf("term%d ", i), 2+i%9)))
		b.WriteString("\n\n")
	}
	text := b.String()

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, p := range SplitParagraphs(text) {
		want := StripPageMarkers(p.Text)
		if want == "" {
			continue
		}
		found := false
		for _, c := range chunks {
			if strings.Contains(c.Content, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("paragraph %q at %d is missing from every chunk", want, p.Start)
		}
	}
	assertStructure(t, text, chunks)
}

// --- Overlap ---

func TestChunk_OverlapCarriesLastParagraph(t *testing.T) {
	cfg := Config{MinTokens: 10, TargetTokens: 20, MaxTokens: 30, OverlapParagraphs: 1}
	e := mustEngine(t, cfg)

	paras := make([]string, 6)
	for i := range paras {
		paras[i] = para(byte('a' + i))
	}
	text := strings.Join(paras, "\n\n")

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Content, paras[3]) {
		t.Errorf("chunk 1 should start with carried paragraph %q, got %q", paras[3], chunks[1].Content)
	}
	if chunks[1].StartChar >= chunks[0].EndChar {
		t.Errorf("expected overlapping spans, got [%d,%d) and [%d,%d)",
			chunks[0].StartChar, chunks[0].EndChar, chunks[1].StartChar, chunks[1].EndChar)
	}
	if chunks[1].Metadata.ParagraphCount != 3 {
		t.Errorf("chunk 1 paragraph_count = %d, want 3", chunks[1].Metadata.ParagraphCount)
	}
}

func TestChunk_NoOverlapFromSingleParagraphChunk(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 5, MaxTokens: 8, OverlapParagraphs: 1}
	e := mustEngine(t, cfg)

	text := para('a') + "\n\n" + para('b') + "\n\n" + para('c')
	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Metadata.ParagraphCount != 1 {
			t.Errorf("chunk %d paragraph_count = %d, want 1", i, c.Metadata.ParagraphCount)
		}
	}
}

// words builds a paragraph of n words keyed by letter, 5n-1 chars long.
func words(letter byte, n int) string {
	w := string(letter) + "xxx"
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func TestChunk_OverlapSeedsChunkEvenPastMax(t *testing.T) {
	e := mustEngine(t, DefaultConfig())

	// ~100, ~350 and ~500 tokens: the third paragraph closes [p1 p2].
	p1, p2, p3 := words('a', 80), words('b', 280), words('c', 400)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Metadata.ParagraphCount != 2 {
		t.Errorf("chunk 0 paragraph_count = %d, want 2", chunks[0].Metadata.ParagraphCount)
	}
	if chunks[1].Content != p2+"\n\n"+p3 {
		t.Errorf("chunk 1 should be the carried paragraph followed by the next one, got %.40q...",
			chunks[1].Content)
	}
	if chunks[1].Metadata.ParagraphCount != 2 {
		t.Errorf("chunk 1 paragraph_count = %d, want 2", chunks[1].Metadata.ParagraphCount)
	}
	if chunks[1].StartChar != chunks[0].StartChar+len(p1)+2 {
		t.Errorf("chunk 1 starts at %d, want start of p2", chunks[1].StartChar)
	}
	assertStructure(t, text, chunks)
}

// --- Headers ---

func TestChunk_HeaderClosesChunkPastTarget(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 10, MaxTokens: 100, DetectHeaders: true}
	e := mustEngine(t, cfg)

	text := strings.Join([]string{
		"ARTICLE I", para('a'), para('b'),
		"ARTICLE II", para('c'),
	}, "\n\n")

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := chunks[0].Metadata.SectionName(); got != "ARTICLE I" {
		t.Errorf("chunk 0 section = %q", got)
	}
	if got := chunks[1].Metadata.SectionName(); got != "ARTICLE II" {
		t.Errorf("chunk 1 section = %q", got)
	}
	if !strings.HasPrefix(chunks[1].Content, "ARTICLE II") {
		t.Errorf("chunk 1 should start at the header, got %q", chunks[1].Content)
	}
}

func TestChunk_HeaderBelowMinDoesNotSplit(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 5, MaxTokens: 100, DetectHeaders: true}
	e := mustEngine(t, cfg)

	chunks := e.Chunk(Input{Text: "ARTICLE I\n\nARTICLE II\n\n" + para('a')})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if got := chunks[0].Metadata.SectionName(); got != "ARTICLE I" {
		t.Errorf("section = %q, want ARTICLE I", got)
	}
}

func TestChunk_ActiveSectionInheritedAcrossChunks(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 10, MaxTokens: 12, DetectHeaders: true}
	e := mustEngine(t, cfg)

	text := strings.Join([]string{"ARTICLE IV", para('a'), para('b'), para('c')}, "\n\n")
	chunks := e.Chunk(Input{Text: text})
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Metadata.HasSectionHeader {
		t.Error("last chunk should not contain a header")
	}
	if got := last.Metadata.SectionName(); got != "ARTICLE IV" {
		t.Errorf("last chunk section = %q, want inherited ARTICLE IV", got)
	}
}

func TestChunk_NoHeaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectHeaders = false
	e := mustEngine(t, cfg)

	chunks := e.Chunk(Input{Text: "ARTICLE I\n\n" + para('a')})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.Section != nil || chunks[0].Metadata.HasSectionHeader {
		t.Errorf("expected no section metadata, got %+v", chunks[0].Metadata)
	}
}

// --- Pages ---

func TestChunk_PagesFromMarkers(t *testing.T) {
	text := "[Page 1]\n" + para('a') + "\n\n[Page 2]\n" + para('b') + "\n\n[Page 3]\n" + para('c')
	e := mustEngine(t, DefaultConfig())

	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	md := chunks[0].Metadata
	if md.StartPage != 1 || md.EndPage != 3 {
		t.Errorf("pages = %d-%d, want 1-3", md.StartPage, md.EndPage)
	}
	if strings.Contains(chunks[0].Content, "[Page") {
		t.Errorf("markers should be stripped, got %q", chunks[0].Content)
	}
}

func TestChunk_PreservePageMarkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PreservePageMarkers = true
	e := mustEngine(t, cfg)

	text := "[Page 1]\n" + para('a') + "\n\n[Page 2]\n" + para('b')
	chunks := e.Chunk(Input{Text: text})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "[Page 2]") {
		t.Errorf("expected markers preserved, got %q", chunks[0].Content)
	}
}

func TestChunk_ExplicitPageBoundaries(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 5, MaxTokens: 8}
	e := mustEngine(t, cfg)

	a, b := para('a'), para('b')
	text := a + "\n\n" + b
	pages := []chunk.PageBoundary{{Page: 4, Offset: 0}, {Page: 5, Offset: len(a) + 2}}

	chunks := e.Chunk(Input{Text: text, Pages: pages})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if p := chunks[0].Metadata; p.StartPage != 4 || p.EndPage != 4 {
		t.Errorf("chunk 0 pages = %d-%d, want 4-4", p.StartPage, p.EndPage)
	}
	if p := chunks[1].Metadata; p.StartPage != 5 || p.EndPage != 5 {
		t.Errorf("chunk 1 pages = %d-%d, want 5-5", p.StartPage, p.EndPage)
	}
}

func TestChunk_PageOrdering(t *testing.T) {
	cfg := Config{MinTokens: 5, TargetTokens: 10, MaxTokens: 15, OverlapParagraphs: 1}
	e := mustEngine(t, cfg)

	var b strings.Builder
	for i := 0; i < 12; i++ {
		if i%3 == 0 {
			fmt.Fprintf(&b, "[Page %d]\n", i/3+1)
		}
		b.WriteString(para(byte('a' + i)))
		b.WriteString("\n\n")
	}
	chunks := e.Chunk(Input{Text: b.String()})
	for i, c := range chunks {
		if c.Metadata.StartPage > c.Metadata.EndPage {
			t.Errorf("chunk %d pages %d-%d", i, c.Metadata.StartPage, c.Metadata.EndPage)
		}
		if i > 0 && c.Metadata.StartPage < chunks[i-1].Metadata.StartPage {
			t.Errorf("chunk %d start page %d before previous %d",
				i, c.Metadata.StartPage, chunks[i-1].Metadata.StartPage)
		}
	}
	if last := chunks[len(chunks)-1]; last.Metadata.EndPage != 4 {
		t.Errorf("last end page = %d, want 4", last.Metadata.EndPage)
	}
}

// --- Concurrency ---

func TestChunkMany_KeepsOrder(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	inputs := []Input{
		{DocumentID: "d1", Text: "ARTICLE I\n\n" + para('a')},
		{DocumentID: "d2", Text: ""},
		{DocumentID: "d3", Text: para('c')},
	}

	results, err := e.ChunkMany(context.Background(), inputs, 2)
	if err != nil {
		t.Fatalf("ChunkMany: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(results[0]) != 1 || results[0][0].DocumentID != "d1" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if len(results[1]) != 0 {
		t.Errorf("expected empty result for empty document, got %d chunks", len(results[1]))
	}
	if len(results[2]) != 1 || results[2][0].DocumentID != "d3" {
		t.Errorf("result 2 = %+v", results[2])
	}
}

func TestChunkMany_Cancelled(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ChunkMany(ctx, []Input{{Text: para('a')}}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- Config ---

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero min", Config{MinTokens: 0, TargetTokens: 10, MaxTokens: 20}},
		{"target below min", Config{MinTokens: 10, TargetTokens: 5, MaxTokens: 20}},
		{"max below target", Config{MinTokens: 5, TargetTokens: 10, MaxTokens: 8}},
		{"negative overlap", Config{MinTokens: 5, TargetTokens: 10, MaxTokens: 20, OverlapParagraphs: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
