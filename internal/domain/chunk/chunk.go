// Package chunk defines the retrieval unit of a document and its embedding records.
package chunk

import "fmt"

// Chunk is a contiguous span of a document's text selected for independent retrieval.
// Offsets are in original-text coordinates. Chunks are immutable once produced; a
// re-processed document gets a whole new set.
type Chunk struct {
	ID         string   `json:"id,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	Index      int      `json:"chunk_index"`
	Content    string   `json:"content"`
	TokenCount int      `json:"token_count"`
	CharCount  int      `json:"char_count"`
	StartChar  int      `json:"start_char"`
	EndChar    int      `json:"end_char"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata is the fixed-shape citation metadata of a chunk.
type Metadata struct {
	StartPage        int     `json:"start_page"`
	EndPage          int     `json:"end_page"`
	Section          *string `json:"section"`
	ParagraphCount   int     `json:"paragraph_count"`
	HasSectionHeader bool    `json:"has_section_header"`
}

// SectionName returns the section title or "" when none was detected.
func (m Metadata) SectionName() string {
	if m.Section == nil {
		return ""
	}
	return *m.Section
}

// PageBoundary marks where a page starts in the extracted text.
type PageBoundary struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}

// Embedding associates one chunk with one dense vector.
type Embedding struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	Model   string    `json:"model"`
}

// Hit is a single similarity search result.
type Hit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Index      int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Validate checks the structural invariants of a chunk list produced for one document:
// dense 0..N-1 indexes and sane offsets.
func Validate(chunks []Chunk) error {
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.StartChar < 0 || c.EndChar < c.StartChar {
			return fmt.Errorf("chunk %d has invalid span [%d,%d)", i, c.StartChar, c.EndChar)
		}
		if c.Metadata.StartPage > c.Metadata.EndPage {
			return fmt.Errorf("chunk %d has invalid page span %d-%d", i, c.Metadata.StartPage, c.Metadata.EndPage)
		}
	}
	return nil
}
