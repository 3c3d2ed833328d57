// Package search provides keyword search over session transcripts.
package search

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

const pageSize = 500

// Hit is one matching transcript entry.
type Hit struct {
	EntryID   string
	SessionID string
	Channel   session.Channel
	Speaker   string
	Text      string
	Score     float64
}

// TranscriptIndex indexes the entries of every channel of a session.
type TranscriptIndex struct {
	index bleve.Index
	path  string
}

// NewTranscriptIndex opens or creates the index at path. An empty path
// keeps the index in memory. A corrupted index on disk is recreated.
func NewTranscriptIndex(path string) (*TranscriptIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create transcript index: %w", err)
		}
		return &TranscriptIndex{index: index}, nil
	}

	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create transcript index: %w", err)
		}
	} else if err != nil {
		log.Printf("⚠️  transcript index appears corrupted (error: %v), recreating...", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate transcript index: %w", err)
		}
	}
	return &TranscriptIndex{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	entryMapping := bleve.NewDocumentMapping()

	for _, name := range []string{"session_id", "channel", "speaker"} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		field.Index = true
		entryMapping.AddFieldMappingsAt(name, field)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.Index = true
	entryMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = entryMapping
	return indexMapping
}

// IndexSession replaces everything indexed for s with its current
// transcripts.
func (x *TranscriptIndex) IndexSession(s *session.Session) error {
	stale, err := x.entryIDs(s.ID)
	if err != nil {
		return err
	}

	batch := x.index.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	add := func(e session.Entry) error {
		doc := map[string]interface{}{
			"session_id": s.ID,
			"channel":    string(e.Channel),
			"speaker":    e.Speaker,
			"text":       e.Text,
		}
		if err := batch.Index(e.ID, doc); err != nil {
			return fmt.Errorf("failed to add entry %s to batch: %w", e.ID, err)
		}
		return nil
	}
	for _, e := range s.Public {
		if err := add(e); err != nil {
			return err
		}
	}
	for _, name := range s.Roster() {
		for _, e := range s.Private[name] {
			if err := add(e); err != nil {
				return err
			}
		}
	}
	return x.index.Batch(batch)
}

// RemoveSession drops every entry of session id.
func (x *TranscriptIndex) RemoveSession(id string) error {
	ids, err := x.entryIDs(id)
	if err != nil {
		return err
	}
	batch := x.index.NewBatch()
	for _, entryID := range ids {
		batch.Delete(entryID)
	}
	return x.index.Batch(batch)
}

// Query narrows a search. Empty fields match everything.
type Query struct {
	Text      string
	SessionID string
	Channel   session.Channel
	Speaker   string
	Limit     int
}

// Search returns the best matching entries, highest score first.
func (x *TranscriptIndex) Search(q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("search text is empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	match := bleve.NewMatchQuery(q.Text)
	match.SetField("text")
	clauses := []query.Query{match}
	for field, value := range map[string]string{
		"session_id": q.SessionID,
		"channel":    string(q.Channel),
		"speaker":    q.Speaker,
	} {
		if value == "" {
			continue
		}
		term := bleve.NewTermQuery(value)
		term.SetField(field)
		clauses = append(clauses, term)
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(clauses...))
	req.Size = q.Limit
	req.Fields = []string{"session_id", "channel", "speaker", "text"}

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("transcript search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{EntryID: h.ID, Score: h.Score}
		hit.SessionID, _ = h.Fields["session_id"].(string)
		if ch, ok := h.Fields["channel"].(string); ok {
			hit.Channel = session.Channel(ch)
		}
		hit.Speaker, _ = h.Fields["speaker"].(string)
		hit.Text, _ = h.Fields["text"].(string)
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed entries.
func (x *TranscriptIndex) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the index.
func (x *TranscriptIndex) Close() error {
	return x.index.Close()
}

func (x *TranscriptIndex) entryIDs(sessionID string) ([]string, error) {
	term := bleve.NewTermQuery(sessionID)
	term.SetField("session_id")

	var ids []string
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(term, pageSize, from, false)
		res, err := x.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries of %s: %w", sessionID, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < pageSize {
			return ids, nil
		}
	}
}
