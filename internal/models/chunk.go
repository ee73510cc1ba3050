package models

// Chunk is a word window of one paper section. ID depends only on
// (PaperID, Index), never on Text.
type Chunk struct {
	ID      string `json:"id"`
	PaperID string `json:"paperId"`
	Text    string `json:"text"`
	Section string `json:"section,omitempty"`
	Index   int    `json:"index"`
}

type ChunkPayload struct {
	PaperID string `json:"paperId"`
	Text    string `json:"text"`
	Section string `json:"section"`
	Index   int    `json:"index"`
}

// IndexedPoint is the persisted unit of the vector index.
type IndexedPoint struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"-"`
	Payload ChunkPayload `json:"payload"`
}

// SearchResult carries a cosine similarity score: higher is closer.
type SearchResult struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
	PaperID     string  `json:"paperId"`
	SectionName string  `json:"sectionName"`
}

func (c Chunk) Point(vector []float32) IndexedPoint {
	return IndexedPoint{
		ID:     c.ID,
		Vector: vector,
		Payload: ChunkPayload{
			PaperID: c.PaperID,
			Text:    c.Text,
			Section: c.Section,
			Index:   c.Index,
		},
	}
}
