package engine

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Embedder turns text into a vector. All vectors from one Embedder share a
// dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder returns an embedder for model served at url. dims is a
// hint used until the first response reports the real size.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, raw)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims = len(result.Embeddings[0])
	return result.Embeddings[0], nil
}

// ProbeOllama reports whether url serves model for embedding.
func ProbeOllama(ctx context.Context, url, model string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	emb := NewOllamaEmbedder(url, model, 0)
	_, err := emb.Embed(ctx, "probe")
	return err == nil
}

// TFIDFEmbedder is a bag-of-words embedder fitted on a fixed corpus. It
// needs no external service, so it backs tests and offline installs.
type TFIDFEmbedder struct {
	vocab []string
	index map[string]int
	idf   []float64
	model string
}

// NewTFIDFEmbedder fits a vocabulary of at most maxTerms terms, ranked by
// document frequency, over docs.
func NewTFIDFEmbedder(docs []string, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	if len(terms) == 0 {
		// one empty slot keeps vectors non-empty
		terms = []string{""}
	}

	numDocs := float64(max(len(docs), 1))
	emb := &TFIDFEmbedder{
		vocab: terms,
		index: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	h := sha1.New()
	for i, term := range terms {
		emb.index[term] = i
		emb.idf[i] = math.Log(numDocs/float64(max(df[term], 1))) + 1.0
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	emb.model = "tfidf:" + hex.EncodeToString(h.Sum(nil))[:12]
	return emb
}

// FitTFIDF fits a TFIDFEmbedder on every record in store, archived ones
// included.
func FitTFIDF(ctx context.Context, store SemanticStore, maxTerms int) (*TFIDFEmbedder, error) {
	var docs []string
	err := store.Scan(ctx, memory.ScanFilter{IncludeArchived: true}, func(r memory.Record) error {
		docs = append(docs, r.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan corpus for tfidf: %w", err)
	}
	return NewTFIDFEmbedder(docs, maxTerms), nil
}

// Model includes a vocabulary fingerprint; vectors from differently fitted
// embedders are not comparable.
func (t *TFIDFEmbedder) Model() string   { return t.model }
func (t *TFIDFEmbedder) Dimensions() int { return len(t.vocab) }

func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, len(t.vocab))
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	tf := make(map[string]int)
	maxTF := 0
	for _, tok := range tokens {
		tf[tok]++
		maxTF = max(maxTF, tf[tok])
	}

	for term, count := range tf {
		i, ok := t.index[term]
		if !ok {
			continue
		}
		// augmented tf
		vec[i] = (0.5 + 0.5*float64(count)/float64(maxTF)) * t.idf[i]
	}

	normalize(vec)
	return vec, nil
}

// tokenize lowercases text and splits on anything that is not a letter,
// digit, hyphen or underscore. Single-character tokens are dropped.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
