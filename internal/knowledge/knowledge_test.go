package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	toks := tokenize("The seller opened a new account and immediately changed the bank on file")
	for _, stop := range []string{"the", "a", "and", "on"} {
		require.NotContains(t, toks, stop)
	}
	require.Contains(t, toks, "seller")
	require.Contains(t, toks, "account")
	require.Contains(t, toks, "bank")
}

func TestAddKnowledgeStoresTokenizedEntries(t *testing.T) {
	s := New()
	entries := s.AddKnowledge(NamespaceDecisions, []Record{
		{Text: "Seller S1 was suspended for payout velocity spike", Category: "decision", SellerID: "S1"},
	})
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].KnowledgeID)
	require.Contains(t, entries[0].Tokens, "suspended")
}

func TestChunkerRespectsBoundsAndOverlap(t *testing.T) {
	sentence := "The seller rapidly changed their bank account details during an active dispute. "
	var text string
	for i := 0; i < 40; i++ {
		text += sentence
	}

	chunks := chunk(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), maxChunkChars+len(sentence))
	}

	// Consecutive chunks should share at least one sentence of overlap.
	firstChunkSentences := splitSentences(chunks[0])
	secondChunkSentences := splitSentences(chunks[1])
	require.Equal(t, firstChunkSentences[len(firstChunkSentences)-1], secondChunkSentences[0])
}

func TestAddDocumentWithChunksLinksParentAndChunks(t *testing.T) {
	s := New()
	sentence := "Velocity spike detected across three sellers sharing one bank account. "
	var text string
	for i := 0; i < 60; i++ {
		text += sentence
	}

	parent, chunks := s.AddDocumentWithChunks(NamespaceRiskEvents, Record{Text: text, Category: "investigation"})
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.Equal(t, parent.KnowledgeID, c.ParentDocumentID)
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, len(chunks), c.TotalChunks)
	}

	got, ok := s.GetDocument(parent.KnowledgeID)
	require.True(t, ok)
	require.Equal(t, parent.Text, got.Text)
}

func TestSearchRanksByOverlapAndRecency(t *testing.T) {
	s := New()
	old := s.AddKnowledge(NamespaceDecisions, []Record{
		{Text: "seller suspended for payout velocity spike", Category: "decision", Timestamp: time.Now().Add(-90 * 24 * time.Hour)},
	})[0]
	recent := s.AddKnowledge(NamespaceDecisions, []Record{
		{Text: "seller suspended for payout velocity spike", Category: "decision", Timestamp: time.Now()},
	})[0]

	results := s.Search("payout velocity spike", SearchOptions{Namespace: NamespaceDecisions})
	require.Len(t, results, 2)
	require.Equal(t, recent.KnowledgeID, results[0].Entry.KnowledgeID)
	require.Equal(t, old.KnowledgeID, results[1].Entry.KnowledgeID)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchFiltersByNamespaceAndSeller(t *testing.T) {
	s := New()
	s.AddKnowledge(NamespaceDecisions, []Record{{Text: "bank change during dispute", SellerID: "S1"}})
	s.AddKnowledge(NamespaceDecisions, []Record{{Text: "bank change during dispute", SellerID: "S2"}})
	s.AddKnowledge(NamespaceRules, []Record{{Text: "bank change during dispute", SellerID: "S1"}})

	results := s.Search("bank change dispute", SearchOptions{Namespace: NamespaceDecisions, SellerID: "S1"})
	require.Len(t, results, 1)
	require.Equal(t, "S1", results[0].Entry.SellerID)
}

func TestSearchScoresDisjointQueryOnRecencyAlone(t *testing.T) {
	s := New()
	s.AddKnowledge(NamespaceDecisions, []Record{{Text: "bank change during dispute"}})
	results := s.Search("unrelated shipping label printer malfunction", SearchOptions{})
	require.Len(t, results, 1)
	require.InDelta(t, 0.3, results[0].Score, 0.01)
}
