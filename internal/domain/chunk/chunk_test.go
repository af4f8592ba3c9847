package chunk

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidate_DenseIndexes(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, StartChar: 0, EndChar: 10, Metadata: Metadata{StartPage: 1, EndPage: 1}},
		{Index: 1, StartChar: 5, EndChar: 20, Metadata: Metadata{StartPage: 1, EndPage: 2}},
	}
	if err := Validate(chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_GapInIndexes(t *testing.T) {
	chunks := []Chunk{{Index: 0}, {Index: 2}}
	if err := Validate(chunks); err == nil {
		t.Fatal("expected error for non-dense indexes")
	}
}

func TestValidate_InvertedSpan(t *testing.T) {
	chunks := []Chunk{{Index: 0, StartChar: 10, EndChar: 5}}
	if err := Validate(chunks); err == nil {
		t.Fatal("expected error for inverted span")
	}
}

func TestMetadata_NullSectionSerializesAsNull(t *testing.T) {
	data, err := json.Marshal(Metadata{StartPage: 1, EndPage: 1, ParagraphCount: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"section":null`) {
		t.Errorf("expected null section, got %s", data)
	}
}

func TestMetadata_SectionName(t *testing.T) {
	s := "ARTICLE I"
	if got := (Metadata{Section: &s}).SectionName(); got != s {
		t.Errorf("got %q, want %q", got, s)
	}
	if got := (Metadata{}).SectionName(); got != "" {
		t.Errorf("expected empty section name, got %q", got)
	}
}
