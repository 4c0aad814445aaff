// Package assemble builds the bounded context payload for a chat turn:
// retrieved documents packed whole-or-nothing in rank order, plus the
// most recent conversation history within its budget share.
package assemble

import (
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// Config tunes the assembler.
type Config struct {
	// Budget is the total character budget for documents plus history.
	Budget int
	// HistoryShare is the fraction of Budget reserved for history when
	// history is present, in [0, 1].
	HistoryShare float64
}

// Payload is the assembled context for one turn. Assembly is pure and
// deterministic: the same inputs always produce the same payload.
type Payload struct {
	Query      string
	Documents  []retrieval.Candidate
	History    []session.Turn
	BudgetUsed int
}

// Assembler packs candidates and history into a budgeted payload.
type Assembler struct {
	cfg Config
}

// New creates an Assembler.
func New(cfg Config) *Assembler {
	if cfg.Budget < 1 {
		cfg.Budget = 6000
	}
	if cfg.HistoryShare < 0 {
		cfg.HistoryShare = 0
	}
	if cfg.HistoryShare > 1 {
		cfg.HistoryShare = 1
	}
	return &Assembler{cfg: cfg}
}

// Assemble builds the payload. Documents are packed in rank order until
// the next one would exceed the document budget; that document and every
// lower-ranked one are excluded whole, keeping each packed article
// intact. History is selected newest-first within its share, then
// emitted in chronological order.
func (a *Assembler) Assemble(query string, candidates []retrieval.Candidate, history []session.Turn) Payload {
	docBudget := a.cfg.Budget
	historyBudget := 0
	if len(history) > 0 {
		historyBudget = int(float64(a.cfg.Budget) * a.cfg.HistoryShare)
		docBudget = a.cfg.Budget - historyBudget
	}

	payload := Payload{Query: query}

	remaining := docBudget
	for _, c := range candidates {
		cost := documentCost(c)
		if cost > remaining {
			break
		}
		payload.Documents = append(payload.Documents, c)
		remaining -= cost
		payload.BudgetUsed += cost
	}

	// Walk history backwards so the newest turns win the budget, then
	// reverse the selection back into chronological order.
	remaining = historyBudget
	var selected []session.Turn
	for i := len(history) - 1; i >= 0; i-- {
		cost := turnCost(history[i])
		if cost > remaining {
			break
		}
		selected = append(selected, history[i])
		remaining -= cost
		payload.BudgetUsed += cost
	}
	for i := len(selected) - 1; i >= 0; i-- {
		payload.History = append(payload.History, selected[i])
	}

	return payload
}

// documentCost is the character footprint of a packed document.
func documentCost(c retrieval.Candidate) int {
	d := c.Document
	return len(d.Title) + len(d.Summary) + len(d.URL) + len(d.Body)
}

// turnCost is the character footprint of a history turn.
func turnCost(t session.Turn) int {
	return len(t.Role) + len(t.Text) + 2
}
