package extract

import (
	"strings"

	"github.com/goccy/go-json"
)

const systemPrompt = `You are an expert event parser. Extract a clean JSON array of events from the given markdown about Tampa events.
Rules:
- Output ONLY valid JSON, no prose.
- Each event must include: id (string), title (string), description (string, can be short), category (string), location (string), startDate (YYYY-MM-DD), startTime (string, e.g. 7:30 PM), url (string). URL is REQUIRED. If multiple candidate links exist, choose the event detail or ticket link.
- If only a date-time string is present, split into startDate and startTime.
- If month/day names are present without year, assume the next occurrence from today.
- For multi-day events, use the first date as startDate and startTime as the first start time you can find.
- Infer category from context (music, arts, business, technology, sports, networking, nightlife, festival, concert, theater, comedy, family) if possible.
- Location can be a venue or city; prefer venue if available.`

const sourceSeparator = "\n\n---\n\n"

// CombineMarkdown tags each non-empty document with its URL and joins them.
func CombineMarkdown(docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		blocks = append(blocks, "# SOURCE: "+d.URL+"\n\n"+d.Markdown)
	}
	return strings.Join(blocks, sourceSeparator)
}

// CombineLinks flattens every document's links into one JSON array.
func CombineLinks(docs []Document) string {
	links := make([]string, 0)
	for _, d := range docs {
		links = append(links, d.Links...)
	}
	b, err := json.Marshal(links)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// UserPrompt builds the user message. Both parts are truncated to their
// budgets so the request size stays bounded whatever the pages contain.
func UserPrompt(markdown, linksJSON string, markdownBudget, linksBudget int) string {
	var b strings.Builder
	b.WriteString("Markdown to parse (multi-source):\n\n")
	b.WriteString(Truncate(markdown, markdownBudget))
	b.WriteString("\n\nLINKS (JSON array of discovered links for reference):\n")
	b.WriteString(Truncate(linksJSON, linksBudget))
	return b.String()
}
