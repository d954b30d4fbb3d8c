package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/helpinghand/relay/internal/persona"
)

// TitleFor picks a report title from the request wording. Falls back to a
// generic company report when nothing specific is mentioned.
func TitleFor(request string) string {
	lower := strings.ToLower(request)
	switch {
	case strings.Contains(lower, "maintenance"):
		return "Vehicle Maintenance Report"
	case strings.Contains(lower, "status"):
		return "Status Report"
	case strings.Contains(lower, "inventory"):
		return "Inventory Report"
	default:
		return "Helping Hand Report"
	}
}

// Build renders the report as Markdown. The request text is quoted
// verbatim so the reader can see what was asked for.
func Build(title string, p *persona.Persona, request string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Report prepared by %s at Helping Hand Acceptance Corporation.\n\n", p.Name)
	fmt.Fprintf(&b, "Request: %s\n\n", request)
	b.WriteString("## Details\n\n")
	b.WriteString("This document was generated in response to a Teams request.\n\n")
	fmt.Fprintf(&b, "- Author: %s\n", p.Name)
	fmt.Fprintf(&b, "- Date: %s\n", now.Format("January 2, 2006"))
	return []byte(b.String())
}

// Filename builds a drive-safe name for the report file.
func Filename(title string, now time.Time) string {
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	return fmt.Sprintf("%s-%s.md", slug, now.Format("2006-01-02-150405"))
}
