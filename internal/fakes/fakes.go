// Package fakes provides deterministic stand-ins for the external models so
// pipeline packages can be tested without network access.
package fakes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/llm"
)

const EmbeddingDim = 64

// HashEmbedder is a bag-of-words embedder: each lowercased token adds one to
// a hashed bucket and the result is L2-normalized. Equal texts map to equal
// vectors and texts sharing no tokens are usually near-orthogonal.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.Calls++
	h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashVector(t)
	}
	return out, nil
}

func HashVector(text string) []float32 {
	vec := make([]float32, EmbeddingDim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%EmbeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Generator returns Reply for every prompt and records what it saw.
type Generator struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Prompts []string
	Systems []string
}

func (g *Generator) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)
	g.Systems = append(g.Systems, systemPrompt)
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

// StructuredGenerator answers by request name. Responses are JSON text so
// decoding goes through the same path as the real client; the literal
// "MALFORMED" yields llm.ErrMalformedOutput.
type StructuredGenerator struct {
	mu        sync.Mutex
	Responses map[string]string
	// Respond, when set, takes precedence over Responses.
	Respond  func(req types.StructuredRequest) (string, error)
	Requests []types.StructuredRequest
}

func (s *StructuredGenerator) GenerateStructured(ctx context.Context, req types.StructuredRequest, out any) error {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	respond := s.Respond
	body, ok := s.Responses[req.Name]
	s.mu.Unlock()

	if respond != nil {
		var err error
		body, err = respond(req)
		if err != nil {
			return err
		}
		ok = true
	}
	if !ok {
		return fmt.Errorf("no scripted response for %q", req.Name)
	}
	if body == "MALFORMED" {
		return fmt.Errorf("%w: scripted", llm.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrMalformedOutput, err)
	}
	return nil
}

func (s *StructuredGenerator) Calls() []types.StructuredRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.StructuredRequest(nil), s.Requests...)
}

// NLIClassifier scores a pair with Score, or falls back to a neutral answer.
type NLIClassifier struct {
	Score func(premise, hypothesis string) []types.LabelScore
	Err   error
}

func (n *NLIClassifier) Classify(ctx context.Context, premise, hypothesis string) ([]types.LabelScore, error) {
	if n.Err != nil {
		return nil, n.Err
	}
	if n.Score == nil {
		return Labels(0, 1, 0), nil
	}
	return n.Score(premise, hypothesis), nil
}

// Labels builds an MNLI-style label list.
func Labels(entailment, neutral, contradiction float64) []types.LabelScore {
	return []types.LabelScore{
		{Label: "ENTAILMENT", Score: entailment},
		{Label: "NEUTRAL", Score: neutral},
		{Label: "CONTRADICTION", Score: contradiction},
	}
}

var ErrUnavailable = errors.New("oracle unavailable")
