package chat

import (
	"fmt"
	"strings"

	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
)

// noResultsMessage is returned when retrieval produced nothing to show.
const noResultsMessage = "I couldn't find any relevant information in the " +
	"Mozilla Support knowledge base for your query."

// FormatFallback renders a deterministic article listing for when answer
// synthesis is unavailable. It is a pure function of its inputs and
// cannot fail; the same candidates always produce the same text.
func FormatFallback(candidates []retrieval.Candidate) string {
	if len(candidates) == 0 {
		return noResultsMessage
	}

	var sb strings.Builder
	sb.WriteString("Based on the Mozilla Support documentation, here's what I found:\n\n")

	for i, c := range candidates {
		d := c.Document
		fmt.Fprintf(&sb, "%d. %s\n", i+1, d.Title)
		if d.Summary != "" {
			fmt.Fprintf(&sb, "   %s\n", d.Summary)
		}
		if d.URL != "" {
			fmt.Fprintf(&sb, "   Read more: %s\n", d.URL)
		}
		if len(d.Topics) > 0 {
			fmt.Fprintf(&sb, "   Topics: %s\n", strings.Join(d.Topics, ", "))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "These are the top %d most relevant articles for your query.", len(candidates))
	return sb.String()
}
