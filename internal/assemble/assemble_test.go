package assemble

import (
	"reflect"
	"strings"
	"testing"

	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

func candidate(id string, bodyLen int, sim float64) retrieval.Candidate {
	return retrieval.Candidate{
		Document:   kb.Document{ID: id, Body: strings.Repeat("x", bodyLen)},
		Similarity: sim,
	}
}

func TestAssemblePacksInRankOrder(t *testing.T) {
	a := New(Config{Budget: 100, HistoryShare: 0.5})

	candidates := []retrieval.Candidate{
		candidate("first", 40, 0.9),
		candidate("second", 40, 0.8),
		candidate("third", 40, 0.7),
	}

	p := a.Assemble("q", candidates, nil)

	// No history, so the whole budget goes to documents: 2 of 3 fit.
	if len(p.Documents) != 2 {
		t.Fatalf("packed %d documents, want 2", len(p.Documents))
	}
	if p.Documents[0].Document.ID != "first" || p.Documents[1].Document.ID != "second" {
		t.Errorf("pack order = %q, %q", p.Documents[0].Document.ID, p.Documents[1].Document.ID)
	}
	if p.BudgetUsed > 100 {
		t.Errorf("BudgetUsed %d exceeds budget 100", p.BudgetUsed)
	}
}

// Packing stops at the first document that would blow the budget; no
// lower-ranked document sneaks in after it.
func TestAssembleWholeDocumentOnly(t *testing.T) {
	a := New(Config{Budget: 100})

	candidates := []retrieval.Candidate{
		candidate("top", 40, 0.9),
		candidate("big", 90, 0.8),
		candidate("tail", 30, 0.7),
	}

	p := a.Assemble("q", candidates, nil)
	if len(p.Documents) != 1 {
		t.Fatalf("packed %d documents, want 1", len(p.Documents))
	}
	if p.Documents[0].Document.ID != "top" {
		t.Errorf("packed %q, want only the top-ranked doc", p.Documents[0].Document.ID)
	}
	if p.BudgetUsed != 40 {
		t.Errorf("BudgetUsed = %d, want 40", p.BudgetUsed)
	}
}

// An oversized top-ranked document excludes everything: the budget cut
// happens at the first overflow, not per-document.
func TestAssembleOversizedTopDocument(t *testing.T) {
	a := New(Config{Budget: 100})

	candidates := []retrieval.Candidate{
		candidate("big", 150, 0.9),
		candidate("small", 30, 0.8),
	}

	p := a.Assemble("q", candidates, nil)
	if len(p.Documents) != 0 {
		t.Fatalf("packed %d documents, want 0", len(p.Documents))
	}
	if p.BudgetUsed != 0 {
		t.Errorf("BudgetUsed = %d, want 0", p.BudgetUsed)
	}
}

func TestAssembleHistoryNewestFirst(t *testing.T) {
	a := New(Config{Budget: 100, HistoryShare: 0.5})

	// Each turn costs len(role)+len(text)+2. With a 50-char history
	// budget only the two newest turns fit.
	history := []session.Turn{
		{Role: session.RoleUser, Text: strings.Repeat("a", 12)},      // 18
		{Role: session.RoleAssistant, Text: strings.Repeat("b", 9)},  // 20
		{Role: session.RoleUser, Text: strings.Repeat("c", 10)},      // 16
		{Role: session.RoleAssistant, Text: strings.Repeat("d", 15)}, // 26
	}

	p := a.Assemble("q", nil, history)
	if len(p.History) != 2 {
		t.Fatalf("kept %d history turns, want 2", len(p.History))
	}
	// Chronological order of the newest turns.
	if p.History[0].Text != history[2].Text || p.History[1].Text != history[3].Text {
		t.Errorf("history selection = %q, %q", p.History[0].Text, p.History[1].Text)
	}
}

func TestAssembleMostRecentTurnRetained(t *testing.T) {
	a := New(Config{Budget: 200, HistoryShare: 0.5})

	history := []session.Turn{
		{Role: session.RoleUser, Text: strings.Repeat("old", 40)},
		{Role: session.RoleAssistant, Text: "latest answer"},
	}

	p := a.Assemble("q", nil, history)
	if len(p.History) == 0 {
		t.Fatal("no history kept")
	}
	if p.History[len(p.History)-1].Text != "latest answer" {
		t.Error("most recent turn was not retained")
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a := New(Config{Budget: 120, HistoryShare: 0.4})

	candidates := []retrieval.Candidate{
		candidate("a", 30, 0.9),
		candidate("b", 50, 0.8),
		candidate("c", 20, 0.7),
	}
	history := []session.Turn{
		{Role: session.RoleUser, Text: "question one"},
		{Role: session.RoleAssistant, Text: "answer one"},
	}

	first := a.Assemble("q", candidates, history)
	second := a.Assemble("q", candidates, history)
	if !reflect.DeepEqual(first, second) {
		t.Error("Assemble is not deterministic for identical inputs")
	}
}

func TestAssembleEmptyInputs(t *testing.T) {
	a := New(Config{Budget: 100, HistoryShare: 0.5})

	p := a.Assemble("q", nil, nil)
	if len(p.Documents) != 0 || len(p.History) != 0 || p.BudgetUsed != 0 {
		t.Errorf("empty inputs produced %+v", p)
	}
	if p.Query != "q" {
		t.Errorf("Query = %q", p.Query)
	}
}

func TestAssembleBudgetNeverExceeded(t *testing.T) {
	a := New(Config{Budget: 300, HistoryShare: 0.3})

	var candidates []retrieval.Candidate
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		candidates = append(candidates, candidate(id, 70, 0.5))
	}
	var history []session.Turn
	for range 10 {
		history = append(history, session.Turn{Role: session.RoleUser, Text: strings.Repeat("h", 20)})
	}

	p := a.Assemble("q", candidates, history)
	if p.BudgetUsed > 300 {
		t.Errorf("BudgetUsed %d exceeds budget 300", p.BudgetUsed)
	}
}
