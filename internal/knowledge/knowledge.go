// Package knowledge implements the namespaced corpus: adaptive chunking and
// TF-IDF-flavoured (weighted Jaccard + recency) retrieval used by agents for
// similar-case lookup.
package knowledge

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Namespace is the fixed enumeration of knowledge-base namespaces.
type Namespace string

const (
	NamespaceTransactions Namespace = "transactions"
	NamespaceOnboarding   Namespace = "onboarding"
	NamespaceDecisions    Namespace = "decisions"
	NamespaceRiskEvents   Namespace = "risk-events"
	NamespaceRules        Namespace = "rules"
)

// Entry is one stored knowledge record, tokenized once at insert time.
type Entry struct {
	KnowledgeID      string
	Namespace        Namespace
	Text             string
	Tokens           []string
	Category         string
	SellerID         string
	Domain           string
	Outcome          string
	RiskScore        float64
	Timestamp        time.Time
	ParentDocumentID string
	ChunkIndex       int
	TotalChunks      int
}

// Record is the caller-supplied input to AddKnowledge.
type Record struct {
	Text      string
	Category  string
	SellerID  string
	Domain    string
	Outcome   string
	RiskScore float64
	Timestamp time.Time
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "by": {}, "from": {}, "as": {}, "it": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "their": {}, "its": {},
}

var tokenPattern = regexp.MustCompile(`[^a-z0-9\-]+`)

// tokenize lowercases, strips non-alphanumeric-dash characters, and drops
// tokens of length <= 1 or on the stop-word list.
func tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenPattern.Split(lowered, -1)

	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Store is the handle every component reaches the knowledge base through.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	documents map[string]*Entry // parent documents, keyed separately for retrieval expansion
	byNS      map[Namespace][]string
}

func New() *Store {
	return &Store{
		entries:   make(map[string]*Entry),
		documents: make(map[string]*Entry),
		byNS:      make(map[Namespace][]string),
	}
}

// AddKnowledge tokenises each record's text once and stores it under namespace.
func (s *Store) AddKnowledge(ns Namespace, records []Record) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, 0, len(records))
	for _, r := range records {
		e := &Entry{
			KnowledgeID: uuid.NewString(),
			Namespace:   ns,
			Text:        r.Text,
			Tokens:      tokenize(r.Text),
			Category:    r.Category,
			SellerID:    r.SellerID,
			Domain:      r.Domain,
			Outcome:     r.Outcome,
			RiskScore:   r.RiskScore,
			Timestamp:   r.Timestamp,
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		s.entries[e.KnowledgeID] = e
		s.byNS[ns] = append(s.byNS[ns], e.KnowledgeID)
		out = append(out, e)
	}
	return out
}

// AddDocumentWithChunks stores the full parent document plus each adaptively
// chunked entry, stamped with parentDocumentId/chunkIndex/totalChunks.
func (s *Store) AddDocumentWithChunks(ns Namespace, r Record) (parent *Entry, chunks []*Entry) {
	parentID := uuid.NewString()
	parent = &Entry{
		KnowledgeID: parentID,
		Namespace:   ns,
		Text:        r.Text,
		Tokens:      tokenize(r.Text),
		Category:    r.Category,
		SellerID:    r.SellerID,
		Domain:      r.Domain,
		Outcome:     r.Outcome,
		RiskScore:   r.RiskScore,
		Timestamp:   r.Timestamp,
	}
	if parent.Timestamp.IsZero() {
		parent.Timestamp = time.Now()
	}

	pieces := chunk(r.Text)
	chunks = make([]*Entry, 0, len(pieces))
	for i, piece := range pieces {
		c := &Entry{
			KnowledgeID:      deterministicChunkID(parentID, i),
			Namespace:        ns,
			Text:             piece,
			Tokens:           tokenize(piece),
			Category:         r.Category,
			SellerID:         r.SellerID,
			Domain:           r.Domain,
			Outcome:          r.Outcome,
			RiskScore:        r.RiskScore,
			Timestamp:        parent.Timestamp,
			ParentDocumentID: parentID,
			ChunkIndex:       i,
			TotalChunks:      len(pieces),
		}
		chunks = append(chunks, c)
	}

	s.mu.Lock()
	s.documents[parentID] = parent
	for _, c := range chunks {
		s.entries[c.KnowledgeID] = c
		s.byNS[ns] = append(s.byNS[ns], c.KnowledgeID)
	}
	s.mu.Unlock()

	return parent, chunks
}

func deterministicChunkID(parentID string, index int) string {
	return parentID + "#chunk-" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// GetDocument returns the full parent document for a chunk's parentDocumentId.
func (s *Store) GetDocument(parentDocumentID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.documents[parentDocumentID]
	return e, ok
}
