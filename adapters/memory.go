package adapters

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/itsneelabh/gorag/core"
)

// Document is one retrievable unit held by the static and redis adapters.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StaticAdapter is an in-memory keyword retriever. It is the development
// and test backend: deterministic, dependency-free, and safe for concurrent
// use.
type StaticAdapter struct {
	name       string
	maxResults int
	docs       []Document
	mu         sync.RWMutex
}

// NewStaticAdapter creates a static adapter seeded with documents.
func NewStaticAdapter(name string, docs []Document) *StaticAdapter {
	return &StaticAdapter{
		name: name,
		docs: append([]Document(nil), docs...),
	}
}

// SetMaxResults caps how many items a single retrieval returns. Zero means
// no cap.
func (s *StaticAdapter) SetMaxResults(n int) {
	s.mu.Lock()
	s.maxResults = n
	s.mu.Unlock()
}

// AddDocument appends a document to the corpus.
func (s *StaticAdapter) AddDocument(doc Document) {
	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
}

// GetRelevantContext returns documents matching the query, scored by how
// many query terms appear in the content, best matches first.
func (s *StaticAdapter) GetRelevantContext(ctx context.Context, query string, req *core.RetrievalRequest) ([]core.ContextItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := s.docs
	maxResults := s.maxResults
	s.mu.RUnlock()

	terms := queryTerms(query)

	type scored struct {
		doc   Document
		score int
	}
	var matches []scored
	for _, doc := range docs {
		if score := matchScore(doc.Content, terms); score > 0 {
			matches = append(matches, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	items := make([]core.ContextItem, len(matches))
	for i, m := range matches {
		item := core.ContextItem{
			"content": m.doc.Content,
			"source":  s.name,
		}
		if m.doc.ID != "" {
			item["document_id"] = m.doc.ID
		}
		for k, v := range m.doc.Metadata {
			item[k] = v
		}
		items[i] = item
	}
	return items, nil
}

// queryTerms lowercases and splits a query into match terms.
func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// matchScore counts how many query terms appear in the content.
func matchScore(content string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	score := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	return score
}
