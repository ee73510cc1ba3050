// Package loader supplies papers to the pipeline from an NLPeer-style JSON
// dataset directory or from paper web pages, and caches the loaded set.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xhad/reviewground/internal/models"
)

type DatasetConfig struct {
	Path string
	// MaxPapers caps how many files are read. Zero reads them all.
	MaxPapers int
	Logger    *slog.Logger
}

// Dataset reads one paper per JSON file, in file-name order.
type Dataset struct {
	config DatasetConfig
	logger *slog.Logger
}

func NewDataset(config DatasetConfig) (*Dataset, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	if config.MaxPapers < 0 {
		return nil, fmt.Errorf("max papers must be non-negative, got %d", config.MaxPapers)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Dataset{config: config, logger: config.Logger.With("component", "dataset")}, nil
}

func (d *Dataset) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	entries, err := os.ReadDir(d.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var papers []models.Paper
	for _, entry := range entries {
		if d.config.MaxPapers > 0 && len(papers) >= d.config.MaxPapers {
			break
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(d.config.Path, entry.Name())
		paper, err := ParsePaperFile(path)
		if err != nil {
			d.logger.Warn("skipping unreadable paper", "file", entry.Name(), "error", err)
			continue
		}
		papers = append(papers, paper)
	}

	d.logger.Info("loaded papers", "count", len(papers), "path", d.config.Path)
	return papers, nil
}

type nlpeerNode struct {
	Ix      string `json:"ix"`
	Content string `json:"content"`
	NType   string `json:"ntype"`
	Meta    *struct {
		Section string `json:"section"`
	} `json:"meta"`
}

type nlpeerReport struct {
	PaperSummary string `json:"paper_summary"`
	Strengths    string `json:"summary_of_strengths"`
	Weaknesses   string `json:"summary_of_weaknesses"`
	Comments     string `json:"comments_suggestions_and_typos"`
}

type nlpeerReview struct {
	NoteID string         `json:"note_id"`
	RID    string         `json:"rid"`
	Report nlpeerReport   `json:"report"`
	Scores map[string]any `json:"scores"`
}

type nlpeerMeta struct {
	Title      string   `json:"title"`
	Abstract   string   `json:"abstract"`
	Authors    []string `json:"authors"`
	AcceptedAt string   `json:"accepted_at"`
}

// paperFile accepts both the raw NLPeer layout and already-normalized papers.
type paperFile struct {
	ID      string         `json:"id"`
	Meta    *nlpeerMeta    `json:"meta"`
	Nodes   []nlpeerNode   `json:"nodes"`
	Reviews []nlpeerReview `json:"reviews"`

	Title        string           `json:"title"`
	Abstract     string           `json:"abstract"`
	FullText     string           `json:"fullText"`
	Sections     []models.Section `json:"sections"`
	HumanReviews []models.Review  `json:"humanReviews"`
}

func ParsePaperFile(path string) (models.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Paper{}, err
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParsePaper(data, id)
}

// ParsePaper decodes one paper. fallbackID is used when the file carries no id.
func ParsePaper(data []byte, fallbackID string) (models.Paper, error) {
	var f paperFile
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Paper{}, fmt.Errorf("failed to decode paper: %w", err)
	}

	paper := models.Paper{
		ID:           f.ID,
		Title:        f.Title,
		Abstract:     f.Abstract,
		FullText:     f.FullText,
		Sections:     f.Sections,
		HumanReviews: f.HumanReviews,
	}
	if paper.ID == "" {
		paper.ID = fallbackID
	}

	if f.Meta != nil {
		if paper.Title == "" {
			paper.Title = f.Meta.Title
		}
		if paper.Abstract == "" {
			paper.Abstract = f.Meta.Abstract
		}
	}

	if len(paper.Sections) == 0 && len(f.Nodes) > 0 {
		title, abstract, sections := parseNodes(f.Nodes)
		if paper.Title == "" {
			paper.Title = title
		}
		if paper.Abstract == "" {
			paper.Abstract = abstract
		}
		paper.Sections = sections
	}

	if len(paper.HumanReviews) == 0 {
		paper.HumanReviews = parseReviews(f.Reviews)
	}
	if paper.FullText == "" {
		paper.FullText = JoinSections(paper.Sections)
	}

	if paper.Title == "" && len(paper.Sections) == 0 {
		return models.Paper{}, fmt.Errorf("paper %s has neither a title nor sections", paper.ID)
	}
	if paper.HumanReviews == nil {
		paper.HumanReviews = []models.Review{}
	}
	return paper, nil
}

// parseNodes groups paragraph nodes under the preceding heading.
func parseNodes(nodes []nlpeerNode) (string, string, []models.Section) {
	var (
		title    string
		abstract []string
		sections []models.Section
		current  *models.Section
		body     []string
	)

	flush := func() {
		if current != nil && len(body) > 0 {
			current.Content = strings.Join(body, "\n\n")
			sections = append(sections, *current)
		}
		current, body = nil, nil
	}

	for _, n := range nodes {
		content := strings.TrimSpace(n.Content)
		if content == "" {
			continue
		}
		switch n.NType {
		case "title":
			if title == "" {
				title = content
			}
		case "abstract":
			abstract = append(abstract, content)
		case "heading":
			flush()
			current = &models.Section{Heading: content}
		case "paragraph":
			if current == nil {
				heading := "Body"
				if n.Meta != nil && n.Meta.Section != "" {
					heading = n.Meta.Section
				}
				current = &models.Section{Heading: heading}
			}
			body = append(body, content)
		}
	}
	flush()

	return title, strings.Join(abstract, " "), sections
}

func parseReviews(reviews []nlpeerReview) []models.Review {
	out := make([]models.Review, 0, len(reviews))
	for _, r := range reviews {
		id := r.RID
		if id == "" {
			id = r.NoteID
		}
		out = append(out, models.Review{
			ID:           id,
			PaperSummary: r.Report.PaperSummary,
			Strengths:    r.Report.Strengths,
			Weaknesses:   r.Report.Weaknesses,
			Comments:     r.Report.Comments,
			Scores:       numericScores(r.Scores),
		})
	}
	return out
}

// numericScores keeps scores that are numbers or numeric strings.
func numericScores(raw map[string]any) map[string]float64 {
	scores := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case float64:
			scores[k] = val
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				scores[k] = f
			}
		}
	}
	return scores
}

func JoinSections(sections []models.Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, s.Heading+"\n\n"+s.Content)
	}
	return strings.Join(parts, "\n\n")
}
