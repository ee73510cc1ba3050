package processor_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/pkg/processor"
)

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func newProcessor(t *testing.T, size, overlap int) *processor.Processor {
	t.Helper()
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return p
}

func TestChunkPaper_WindowBoundaries(t *testing.T) {
	p := newProcessor(t, 512, 64)

	chunks := p.ChunkPaper("paper-1", []processor.SectionInput{
		{Title: "Introduction", Content: words(600, "w")},
	})

	require.Len(t, chunks, 2)
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Len(t, first, 512)
	assert.Equal(t, "w448", second[0])
	assert.Equal(t, "w599", second[len(second)-1])
	assert.Len(t, second, 152)
}

func TestChunkPaper_StopsWhenWindowReachesTail(t *testing.T) {
	p := newProcessor(t, 512, 64)

	chunks := p.ChunkPaper("paper-1", []processor.SectionInput{
		{Title: "Introduction", Content: words(960, "w")},
	})

	// A third window at w896 would only repeat the tail of the second.
	require.Len(t, chunks, 2)
	second := strings.Fields(chunks[1].Text)
	assert.Len(t, second, 512)
	assert.Equal(t, "w448", second[0])
	assert.Equal(t, "w959", second[len(second)-1])
}

func TestChunkPaper_EdgeCases(t *testing.T) {
	p := newProcessor(t, 10, 2)

	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{"empty section", "", 0},
		{"whitespace only", "  \n\t ", 0},
		{"shorter than chunk size", words(9, "a"), 1},
		{"exactly chunk size", words(10, "a"), 1},
		{"one word over", words(11, "a"), 2},
		{"three windows", words(25, "a"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := p.ChunkPaper("p", []processor.SectionInput{{Title: "S", Content: tt.content}})
			assert.Len(t, chunks, tt.expected)
		})
	}
}

func TestChunkPaper_CrossSectionNumbering(t *testing.T) {
	p := newProcessor(t, 10, 2)

	chunks := p.ChunkPaper("paper-x", []processor.SectionInput{
		{Title: "Abstract", Content: words(12, "a")},
		{Title: "Empty", Content: ""},
		{Title: "Method", Content: words(5, "m")},
	})

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, processor.ChunkID("paper-x", i), c.ID)
		assert.Equal(t, "paper-x", c.PaperID)
	}
	assert.Equal(t, "Abstract", chunks[0].Section)
	assert.Equal(t, "Abstract", chunks[1].Section)
	assert.Equal(t, "Method", chunks[2].Section)
}

func TestChunkPaper_Deterministic(t *testing.T) {
	p := newProcessor(t, 512, 64)
	paper := models.Paper{
		ID: "paper-det",
		Sections: []models.Section{
			{Heading: "Intro", Content: words(700, "i")},
			{Heading: "Results", Content: words(300, "r")},
		},
	}

	first := p.ChunkPaper(paper.ID, processor.SectionsOf(paper))
	second := p.ChunkPaper(paper.ID, processor.SectionsOf(paper))

	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, c := range first {
		assert.False(t, seen[c.ID], "duplicate chunk id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestChunkID_PositionalNotContent(t *testing.T) {
	p := newProcessor(t, 10, 2)

	a := p.ChunkPaper("paper", []processor.SectionInput{{Content: "alpha beta gamma"}})
	b := p.ChunkPaper("paper", []processor.SectionInput{{Content: "completely different text"}})

	assert.Equal(t, a[0].ID, b[0].ID)
	assert.NotEqual(t, processor.ChunkID("paper", 0), processor.ChunkID("other", 0))
	assert.NotEqual(t, processor.ChunkID("paper", 0), processor.ChunkID("paper", 1))
}

func TestNewWithConfig_RejectsOverlap(t *testing.T) {
	tests := []struct {
		name    string
		config  processor.ProcessorConfig
		wantErr bool
	}{
		{"valid", processor.ProcessorConfig{ChunkSize: 512, ChunkOverlap: 64}, false},
		{"overlap equals size", processor.ProcessorConfig{ChunkSize: 64, ChunkOverlap: 64}, true},
		{"overlap exceeds size", processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 20}, true},
		{"negative overlap", processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.NewWithConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 8, ChunkOverlap: 8})
	assert.ErrorIs(t, err, processor.ErrInvalidOverlap)
}
