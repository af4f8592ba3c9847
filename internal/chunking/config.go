// Package chunking splits extracted document text into token-bounded, layout-aware chunks.
//
// The engine is a pure function of its input: no I/O, no shared mutable state. It can be
// called concurrently for different documents.
package chunking

import "fmt"

// Default tunables.
const (
	DefaultMinTokens         = 100
	DefaultTargetTokens      = 500
	DefaultMaxTokens         = 800
	DefaultOverlapParagraphs = 1
)

// Config holds the chunking tunables.
type Config struct {
	// MinTokens is the size below which a chunk is never closed (except at end of input).
	MinTokens int
	// TargetTokens is the size a chunk must reach before a section header may close it.
	TargetTokens int
	// MaxTokens closes a chunk before a paragraph that would push it past this size.
	// A single paragraph larger than MaxTokens is never split.
	MaxTokens int
	// OverlapParagraphs is how many trailing paragraphs of a closed chunk seed the next one.
	// Overlap is counted in whole paragraphs, not characters. 0 disables overlap.
	OverlapParagraphs int
	// PreservePageMarkers keeps "[Page N]" markers in chunk content.
	PreservePageMarkers bool
	// DetectHeaders enables section header detection.
	DetectHeaders bool
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		MinTokens:         DefaultMinTokens,
		TargetTokens:      DefaultTargetTokens,
		MaxTokens:         DefaultMaxTokens,
		OverlapParagraphs: DefaultOverlapParagraphs,
		DetectHeaders:     true,
	}
}

// Validate checks 0 < min <= target <= max and a non-negative overlap.
func (c Config) Validate() error {
	if c.MinTokens <= 0 {
		return fmt.Errorf("min tokens must be positive, got %d", c.MinTokens)
	}
	if c.TargetTokens < c.MinTokens {
		return fmt.Errorf("target tokens (%d) must be >= min tokens (%d)", c.TargetTokens, c.MinTokens)
	}
	if c.MaxTokens < c.TargetTokens {
		return fmt.Errorf("max tokens (%d) must be >= target tokens (%d)", c.MaxTokens, c.TargetTokens)
	}
	if c.OverlapParagraphs < 0 {
		return fmt.Errorf("overlap paragraphs must be >= 0, got %d", c.OverlapParagraphs)
	}
	return nil
}
