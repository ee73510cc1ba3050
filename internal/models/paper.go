package models

type Paper struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Abstract     string    `json:"abstract"`
	FullText     string    `json:"fullText"`
	Sections     []Section `json:"sections"`
	HumanReviews []Review  `json:"humanReviews"`
}

type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

type Review struct {
	ID           string             `json:"id"`
	PaperSummary string             `json:"paperSummary"`
	Strengths    string             `json:"strengths"`
	Weaknesses   string             `json:"weaknesses"`
	Comments     string             `json:"comments"`
	Scores       map[string]float64 `json:"scores"`
}

// PaperSummary is the listing view of a loaded paper.
type PaperSummary struct {
	Index        int    `json:"index"`
	ID           string `json:"id"`
	Title        string `json:"title"`
	Sections     int    `json:"sections"`
	HumanReviews int    `json:"humanReviews"`
}

func (p Paper) Summary(index int) PaperSummary {
	return PaperSummary{
		Index:        index,
		ID:           p.ID,
		Title:        p.Title,
		Sections:     len(p.Sections),
		HumanReviews: len(p.HumanReviews),
	}
}
