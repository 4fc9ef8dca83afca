package agents

import (
	"strings"

	"github.com/meepleai/meepleai/pkg/models"
)

// parseOutline turns the LLM's markdown-style answer into a structured
// outline: a main topic (# heading), ordered sections (## headings), and
// bullet points (-, *) under each section. Free text that fits nowhere is
// folded into an "Overview" section so no content is silently dropped.
func parseOutline(text, fallbackTopic string) models.Outline {
	outline := models.Outline{MainTopic: fallbackTopic}
	var current *models.OutlineSection

	flush := func() {
		if current != nil && (current.Title != "" || len(current.Points) > 0) {
			outline.Sections = append(outline.Sections, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "# ") && !strings.HasPrefix(line, "## "):
			outline.MainTopic = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "## "):
			flush()
			current = &models.OutlineSection{Title: strings.TrimSpace(line[3:])}
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			if current == nil {
				current = &models.OutlineSection{Title: "Overview"}
			}
			current.Points = append(current.Points, strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "### "):
			if current == nil {
				current = &models.OutlineSection{Title: "Overview"}
			}
			current.Points = append(current.Points, strings.TrimSpace(line[4:]))
		default:
			if current == nil {
				current = &models.OutlineSection{Title: "Overview"}
			}
			current.Points = append(current.Points, line)
		}
	}
	flush()

	return outline
}
