package loader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/xhad/reviewground/internal/models"
	"golang.org/x/time/rate"
)

type FetcherConfig struct {
	URLs       []string
	RateLimit  float64 // requests per second
	Timeout    time.Duration
	OnProgress func(url string)
	Logger     *slog.Logger
}

// Fetcher turns paper web pages into papers: the page title or first h1,
// an abstract block, and one section per h2.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewFetcher(config FetcherConfig) (*Fetcher, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	for _, u := range config.URLs {
		parsed, err := url.Parse(u)
		if err != nil || !parsed.IsAbs() {
			return nil, fmt.Errorf("invalid paper URL %q", u)
		}
	}

	return &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger.With("component", "fetcher"),
	}, nil
}

// LoadPapers fetches every configured URL. A page that fails is skipped.
func (f *Fetcher) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	papers := make([]models.Paper, 0, len(f.config.URLs))
	for _, u := range f.config.URLs {
		paper, err := f.Fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("skipping paper page", "url", u, "error", err)
			continue
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (models.Paper, error) {
	if f.config.OnProgress != nil {
		f.config.OnProgress(pageURL)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return models.Paper{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return models.Paper{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return models.Paper{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Paper{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Paper{}, err
	}

	paper := ParseDocument(doc)
	paper.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(pageURL)).String()
	if paper.Title == "" && len(paper.Sections) == 0 {
		return models.Paper{}, fmt.Errorf("no paper content found at %s", pageURL)
	}
	return paper, nil
}

var abstractSelectors = []string{
	"blockquote.abstract",
	"#abstract",
	".abstract",
	"section.abstract",
}

// ParseDocument extracts title, abstract and h2-delimited sections.
func ParseDocument(doc *goquery.Document) models.Paper {
	title := cleanContent(doc.Find("h1").First().Text())
	if title == "" {
		title = cleanContent(doc.Find("title").First().Text())
	}

	var abstract string
	for _, selector := range abstractSelectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			abstract = strings.TrimPrefix(cleanContent(selected.Text()), "Abstract:")
			abstract = strings.TrimSpace(abstract)
			break
		}
	}

	sections := []models.Section{}
	doc.Find("h2").Each(func(_ int, heading *goquery.Selection) {
		name := cleanContent(heading.Text())
		content := cleanContent(heading.NextUntil("h2").Text())
		if name == "" || content == "" || strings.EqualFold(name, "abstract") {
			return
		}
		sections = append(sections, models.Section{Heading: name, Content: content})
	})

	return models.Paper{
		Title:        title,
		Abstract:     abstract,
		FullText:     JoinSections(sections),
		Sections:     sections,
		HumanReviews: []models.Review{},
	}
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}
