package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/reviewground/internal/models"
)

// ErrInvalidOverlap is returned when the window would never advance.
var ErrInvalidOverlap = errors.New("chunk overlap must be less than chunk size")

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type SectionInput struct {
	Title   string
	Content string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, config.ChunkOverlap, config.ChunkSize)
	}

	return &Processor{
		config: config,
	}, nil
}

// ChunkID derives a chunk id from its position in the paper's chunk
// sequence. Content plays no part, so re-chunking reproduces the ids.
func ChunkID(paperID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", paperID, index))).String()
}

// SectionsOf adapts paper sections to chunker input.
func SectionsOf(paper models.Paper) []SectionInput {
	sections := make([]SectionInput, 0, len(paper.Sections))
	for _, s := range paper.Sections {
		sections = append(sections, SectionInput{Title: s.Heading, Content: s.Content})
	}
	return sections
}

// ChunkPaper splits every section into overlapping word windows and numbers
// the result 0..N-1 across sections.
func (p *Processor) ChunkPaper(paperID string, sections []SectionInput) []models.Chunk {
	var chunks []models.Chunk

	for _, section := range sections {
		for _, text := range p.splitIntoChunks(section.Content) {
			chunks = append(chunks, models.Chunk{
				PaperID: paperID,
				Text:    text,
				Section: section.Title,
			})
		}
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].ID = ChunkID(paperID, i)
	}

	return chunks
}

func (p *Processor) splitIntoChunks(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := p.config.ChunkSize - p.config.ChunkOverlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + p.config.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		// The window already covers the tail; another step would only emit
		// a suffix of this chunk.
		if end == len(words) {
			break
		}
	}

	return chunks
}
