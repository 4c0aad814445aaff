package assemble

import (
	"strings"
	"unicode"

	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// maxEntities caps how many coreference hints a single turn can produce.
const maxEntities = 8

// entityStopwords are capitalized words that start sentences or carry no
// referent, so a run consisting only of them is discarded.
var entityStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "it": {}, "its": {}, "i": {}, "you": {}, "your": {},
	"we": {}, "they": {}, "he": {}, "she": {}, "if": {}, "when": {},
	"how": {}, "what": {}, "why": {}, "where": {}, "which": {}, "who": {},
	"to": {}, "in": {}, "on": {}, "for": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "can": {}, "do": {}, "does": {},
	"please": {}, "note": {}, "also": {}, "first": {}, "then": {},
	"next": {}, "finally": {}, "step": {}, "click": {}, "open": {},
	"select": {}, "go": {}, "see": {}, "make": {}, "sure": {}, "after": {},
	"before": {}, "once": {}, "here": {}, "there": {}, "yes": {}, "no": {},
}

// ContextEntities extracts coreference hints from the most recent
// assistant turn in history. Follow-up queries like "how do I set it up?"
// carry no subject of their own; these hints let retrieval resolve "it"
// to whatever the assistant last talked about.
func ContextEntities(history []session.Turn) []string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleAssistant {
			return ExtractEntities(history[i].Text)
		}
	}
	return nil
}

// ExtractEntities pulls proper-noun-like runs and quoted terms out of
// text. Deterministic: hints appear in order of first occurrence,
// deduplicated case-insensitively.
func ExtractEntities(text string) []string {
	var (
		entities []string
		seen     = make(map[string]struct{})
	)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || len(entities) >= maxEntities {
			return
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		entities = append(entities, s)
	}

	for _, q := range quotedSpans(text) {
		add(q)
	}
	for _, run := range capitalizedRuns(text) {
		add(run)
	}
	return entities
}

// quotedSpans returns the contents of double-quoted spans, shortest
// plausible term length 2, longest 60.
func quotedSpans(text string) []string {
	var spans []string
	for {
		start := strings.IndexByte(text, '"')
		if start < 0 {
			break
		}
		rest := text[start+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			break
		}
		if end >= 2 && end <= 60 {
			spans = append(spans, rest[:end])
		}
		text = rest[end+1:]
	}
	return spans
}

// capitalizedRuns returns maximal runs of consecutive capitalized words,
// skipping runs made up entirely of stopwords.
func capitalizedRuns(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})

	var runs []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		run := strings.Join(current, " ")
		current = nil
		if runIsStopwords(run) {
			return
		}
		runs = append(runs, run)
	}

	for _, w := range words {
		if isCapitalized(w) {
			current = append(current, w)
			continue
		}
		flush()
	}
	flush()
	return runs
}

func isCapitalized(w string) bool {
	r := []rune(w)
	if len(r) < 2 {
		return false
	}
	return unicode.IsUpper(r[0])
}

func runIsStopwords(run string) bool {
	for _, w := range strings.Fields(run) {
		if _, stop := entityStopwords[strings.ToLower(w)]; !stop {
			return false
		}
	}
	return true
}
