package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/reviewground/internal/models"
)

const nlpeerPaper = `{
  "id": "acl-2022-17",
  "meta": {"title": "Sparse Attention for Long Documents", "abstract": "We propose sparse attention.", "authors": ["A. Author"], "accepted_at": "ACL 2022"},
  "nodes": [
    {"ix": "0", "content": "Sparse Attention for Long Documents", "ntype": "title", "meta": null},
    {"ix": "1", "content": "Introduction", "ntype": "heading", "meta": null},
    {"ix": "2", "content": "Long documents are hard.", "ntype": "paragraph", "meta": {"section": "1"}},
    {"ix": "3", "content": "We fix that.", "ntype": "paragraph", "meta": {"section": "1"}},
    {"ix": "4", "content": "x = y", "ntype": "formula", "meta": null},
    {"ix": "5", "content": "Method", "ntype": "heading", "meta": null},
    {"ix": "6", "content": "Block sparse attention on eight GPUs.", "ntype": "paragraph", "meta": null},
    {"ix": "7", "content": "Empty Heading", "ntype": "heading", "meta": null}
  ],
  "reviews": [
    {"note_id": "n1", "rid": "r1",
     "report": {"paper_summary": "A sparse attention paper.", "summary_of_strengths": "Clear.", "summary_of_weaknesses": "Small eval.", "comments_suggestions_and_typos": "Typo in eq 2."},
     "scores": {"overall": 3.5, "confidence": "4", "best_paper": "No"}}
  ]
}`

const normalizedPaper = `{
  "id": "norm-1",
  "title": "Normalized",
  "abstract": "Already normalized.",
  "sections": [{"heading": "Results", "content": "Accuracy improves."}]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParsePaper_NLPeer(t *testing.T) {
	paper, err := ParsePaper([]byte(nlpeerPaper), "fallback")
	require.NoError(t, err)

	assert.Equal(t, "acl-2022-17", paper.ID)
	assert.Equal(t, "Sparse Attention for Long Documents", paper.Title)
	assert.Equal(t, "We propose sparse attention.", paper.Abstract)
	assert.Equal(t, []models.Section{
		{Heading: "Introduction", Content: "Long documents are hard.\n\nWe fix that."},
		{Heading: "Method", Content: "Block sparse attention on eight GPUs."},
	}, paper.Sections)
	assert.Equal(t, "Introduction\n\nLong documents are hard.\n\nWe fix that.\n\nMethod\n\nBlock sparse attention on eight GPUs.", paper.FullText)

	require.Len(t, paper.HumanReviews, 1)
	review := paper.HumanReviews[0]
	assert.Equal(t, "r1", review.ID)
	assert.Equal(t, "Small eval.", review.Weaknesses)
	assert.Equal(t, map[string]float64{"overall": 3.5, "confidence": 4}, review.Scores)
}

func TestParsePaper_Normalized(t *testing.T) {
	paper, err := ParsePaper([]byte(normalizedPaper), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "norm-1", paper.ID)
	assert.Equal(t, "Results\n\nAccuracy improves.", paper.FullText)
	assert.NotNil(t, paper.HumanReviews)
}

func TestParsePaper_FallbackIDAndEmpty(t *testing.T) {
	paper, err := ParsePaper([]byte(`{"title": "Only a title"}`), "file-3")
	require.NoError(t, err)
	assert.Equal(t, "file-3", paper.ID)

	_, err = ParsePaper([]byte(`{}`), "file-4")
	assert.Error(t, err)

	_, err = ParsePaper([]byte(`{not json`), "file-5")
	assert.Error(t, err)
}

func TestParseNodes_ParagraphBeforeHeading(t *testing.T) {
	_, _, sections := parseNodes([]nlpeerNode{
		{Content: "Orphan paragraph.", NType: "paragraph"},
		{Content: "Intro", NType: "heading"},
		{Content: "Body text.", NType: "paragraph"},
	})
	assert.Equal(t, []models.Section{
		{Heading: "Body", Content: "Orphan paragraph."},
		{Heading: "Intro", Content: "Body text."},
	}, sections)
}

func TestDataset_LoadPapers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", nlpeerPaper)
	writeFile(t, dir, "b.json", `{broken`)
	writeFile(t, dir, "c.json", normalizedPaper)
	writeFile(t, dir, "notes.txt", "ignore me")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	ds, err := NewDataset(DatasetConfig{Path: dir})
	require.NoError(t, err)

	papers, err := ds.LoadPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "acl-2022-17", papers[0].ID)
	assert.Equal(t, "norm-1", papers[1].ID)

	ds, err = NewDataset(DatasetConfig{Path: dir, MaxPapers: 1})
	require.NoError(t, err)
	papers, err = ds.LoadPapers(context.Background())
	require.NoError(t, err)
	assert.Len(t, papers, 1)
}

func TestDataset_Errors(t *testing.T) {
	_, err := NewDataset(DatasetConfig{})
	assert.Error(t, err)

	_, err = NewDataset(DatasetConfig{Path: "x", MaxPapers: -1})
	assert.Error(t, err)

	ds, err := NewDataset(DatasetConfig{Path: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	_, err = ds.LoadPapers(context.Background())
	assert.Error(t, err)
}

const paperPage = `<html><head><title>Page Title</title></head><body>
<h1>Sparse   Attention
 for Long Documents</h1>
<blockquote class="abstract">Abstract: We propose sparse attention.</blockquote>
<h2>Abstract</h2><p>duplicate abstract section</p>
<h2>Introduction</h2><p>Long documents are hard.</p><p>We fix that.</p>
<h2>Method</h2><p>Block sparse attention.</p><footer>Privacy Policy</footer>
<h2>Empty</h2>
</body></html>`

func TestParseDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(paperPage))
	require.NoError(t, err)

	paper := ParseDocument(doc)
	assert.Equal(t, "Sparse Attention for Long Documents", paper.Title)
	assert.Equal(t, "We propose sparse attention.", paper.Abstract)
	require.Len(t, paper.Sections, 2)
	assert.Equal(t, "Introduction", paper.Sections[0].Heading)
	assert.Equal(t, "Long documents are hard.We fix that.", paper.Sections[0].Content)
	assert.Equal(t, models.Section{Heading: "Method", Content: "Block sparse attention."}, paper.Sections[1])
}

func TestFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(paperPage))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var visited []string
	f, err := NewFetcher(FetcherConfig{
		URLs:       []string{srv.URL + "/paper", srv.URL + "/missing"},
		RateLimit:  100,
		OnProgress: func(u string) { visited = append(visited, u) },
	})
	require.NoError(t, err)

	papers, err := f.LoadPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Sparse Attention for Long Documents", papers[0].Title)
	assert.Len(t, papers[0].ID, 36)
	assert.Len(t, visited, 2)

	again, err := f.Fetch(context.Background(), srv.URL+"/paper")
	require.NoError(t, err)
	assert.Equal(t, papers[0].ID, again.ID, "ids derive from the URL")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}

func TestNewFetcher_RejectsRelativeURL(t *testing.T) {
	_, err := NewFetcher(FetcherConfig{URLs: []string{"/relative"}})
	assert.Error(t, err)
}

type countingSource struct {
	calls  atomic.Int32
	papers []models.Paper
	err    error
}

func (s *countingSource) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	s.calls.Add(1)
	return s.papers, s.err
}

func TestCache(t *testing.T) {
	src := &countingSource{papers: []models.Paper{
		{ID: "p0", Title: "Zero", Sections: []models.Section{{Heading: "A", Content: "a"}}},
		{ID: "p1", Title: "One", HumanReviews: []models.Review{{ID: "r"}}},
	}}
	c := NewCache(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			papers, err := c.Papers(ctx)
			assert.NoError(t, err)
			assert.Len(t, papers, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())

	p, err := c.Paper(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	_, err = c.Paper(ctx, 2)
	assert.ErrorIs(t, err, ErrPaperIndexOutOfRange)
	_, err = c.Paper(ctx, -1)
	assert.ErrorIs(t, err, ErrPaperIndexOutOfRange)

	byID, index, err := c.PaperByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, "One", byID.Title)

	_, _, err = c.PaperByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrPaperNotFound)

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.PaperSummary{
		{Index: 0, ID: "p0", Title: "Zero", Sections: 1, HumanReviews: 0},
		{Index: 1, ID: "p1", Title: "One", Sections: 0, HumanReviews: 1},
	}, list)

	c.Invalidate()
	_, err = c.Papers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

type blockingSource struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *blockingSource) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return []models.Paper{{ID: "p"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCache_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(src)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Papers(ctx)
		first <- err
	}()
	<-src.started

	type result struct {
		papers []models.Paper
		err    error
	}
	second := make(chan result, 1)
	go func() {
		papers, err := c.Papers(context.Background())
		second <- result{papers, err}
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(src.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.papers, 1)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_ErrorIsNotCached(t *testing.T) {
	boom := errors.New("disk gone")
	src := &countingSource{err: boom}
	c := NewCache(src)

	_, err := c.Papers(context.Background())
	assert.ErrorIs(t, err, boom)

	src.err = nil
	src.papers = []models.Paper{{ID: "p"}}
	papers, err := c.Papers(context.Background())
	require.NoError(t, err)
	assert.Len(t, papers, 1)
}

func TestSources(t *testing.T) {
	a := &countingSource{papers: []models.Paper{{ID: "a"}}}
	b := &countingSource{papers: []models.Paper{{ID: "b"}, {ID: "c"}}}

	papers, err := Sources{a, b}.LoadPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 3)
	assert.Equal(t, "c", papers[2].ID)
}
