package chunking

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// Input is one document's extracted text plus optional explicit page boundaries.
// When Pages is nil, boundaries are parsed from inline "[Page N]" markers.
type Input struct {
	DocumentID string
	Text       string
	Pages      []chunk.PageBoundary
}

// Engine turns extracted text into chunks.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a chunking engine. Returns an error if the tunables are inconsistent.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}
	return &Engine{cfg: cfg, logger: zap.NewNop()}, nil
}

// WithLogger sets the logger used for input warnings.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Config returns the engine's tunables.
func (e *Engine) Config() Config { return e.cfg }

// block is a paragraph prepared for accumulation.
type block struct {
	content  string
	start    int
	end      int
	normLen  int
	header   bool
	title    string // header title, set when header
	activeAt string // active section when this block was reached
}

// Chunk splits one document into ordered chunks with dense indexes starting at 0.
// Empty or whitespace-only text yields an empty list.
func (e *Engine) Chunk(in Input) []chunk.Chunk {
	if strings.TrimSpace(in.Text) == "" {
		e.logger.Warn("empty text, no chunks produced", zap.String("document_id", in.DocumentID))
		return []chunk.Chunk{}
	}

	pages := in.Pages
	if pages == nil {
		pages = ParsePageMarkers(in.Text)
	}

	blocks := e.prepare(in.Text)
	if len(blocks) == 0 {
		e.logger.Warn("text has no content outside page markers", zap.String("document_id", in.DocumentID))
		return []chunk.Chunk{}
	}

	var (
		out     []chunk.Chunk
		pending []block
		chars   int // normalized length of pending, including separators
	)
	emit := func() {
		out = append(out, e.build(in.DocumentID, len(out), pending, pages))
	}
	for _, b := range blocks {
		if len(pending) > 0 && e.shouldSplit(chars, b) {
			emit()
			// The seed is always followed by b, so overlap never stands alone.
			pending = e.carry(pending)
			chars = pendingLen(pending)
		}
		if len(pending) > 0 {
			chars++
		}
		chars += b.normLen
		pending = append(pending, b)
	}
	if len(pending) > 0 {
		emit()
	}
	return out
}

// ChunkMany chunks independent documents concurrently. Results keep input order.
// concurrency <= 0 means no limit.
func (e *Engine) ChunkMany(ctx context.Context, inputs []Input, concurrency int) ([][]chunk.Chunk, error) {
	results := make([][]chunk.Chunk, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Chunk(inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chunk documents: %w", err)
	}
	return results, nil
}

// prepare splits text into blocks, strips markers, and tracks the active section.
func (e *Engine) prepare(text string) []block {
	paras := SplitParagraphs(text)
	blocks := make([]block, 0, len(paras))
	active := ""
	for _, p := range paras {
		content := p.Text
		if !e.cfg.PreservePageMarkers {
			content = StripPageMarkers(content)
			if content == "" {
				continue
			}
		}
		b := block{
			content: content,
			start:   p.Start,
			end:     p.End,
			normLen: normalizedLen(content),
		}
		if e.cfg.DetectHeaders {
			line := firstLine(content)
			if e.cfg.PreservePageMarkers {
				line = firstLine(StripPageMarkers(content))
			}
			if IsSectionHeader(line) {
				b.header = true
				b.title = sectionTitle(line)
				active = b.title
			}
		}
		b.activeAt = active
		blocks = append(blocks, b)
	}
	return blocks
}

// shouldSplit reports whether pending text of the given normalized length must be
// closed before b is appended.
func (e *Engine) shouldSplit(chars int, b block) bool {
	tokens := chars / charsPerToken
	if tokens < e.cfg.MinTokens {
		return false
	}
	withNext := (chars + 1 + b.normLen) / charsPerToken
	return withNext > e.cfg.MaxTokens || (b.header && tokens >= e.cfg.TargetTokens)
}

// carry returns the overlap that seeds the next chunk. A single-paragraph chunk
// carries nothing so that progress is guaranteed.
func (e *Engine) carry(closed []block) []block {
	n := e.cfg.OverlapParagraphs
	if n <= 0 || len(closed) <= 1 {
		return nil
	}
	if n > len(closed)-1 {
		n = len(closed) - 1
	}
	seed := make([]block, n)
	copy(seed, closed[len(closed)-n:])
	return seed
}

func pendingLen(bs []block) int {
	if len(bs) == 0 {
		return 0
	}
	n := len(bs) - 1
	for _, b := range bs {
		n += b.normLen
	}
	return n
}

func (e *Engine) build(docID string, index int, bs []block, pages []chunk.PageBoundary) chunk.Chunk {
	parts := make([]string, len(bs))
	hasHeader := false
	firstHeader := ""
	for i, b := range bs {
		parts[i] = b.content
		if b.header {
			hasHeader = true
			if firstHeader == "" {
				firstHeader = b.title
			}
		}
	}
	content := strings.Join(parts, "\n\n")
	start, end := bs[0].start, bs[len(bs)-1].end

	section := bs[0].activeAt
	if section == "" {
		section = firstHeader
	}
	var sectionPtr *string
	if section != "" {
		sectionPtr = &section
	}

	startPage := PageAt(pages, start)
	endPage := PageAt(pages, end-1)
	if endPage < startPage {
		endPage = startPage
	}

	return chunk.Chunk{
		DocumentID: docID,
		Index:      index,
		Content:    content,
		TokenCount: EstimateTokens(content),
		CharCount:  utf8.RuneCountInString(content),
		StartChar:  start,
		EndChar:    end,
		Metadata: chunk.Metadata{
			StartPage:        startPage,
			EndPage:          endPage,
			Section:          sectionPtr,
			ParagraphCount:   len(bs),
			HasSectionHeader: hasHeader,
		},
	}
}
