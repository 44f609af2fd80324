package embedder

import "strings"

// BuildSearchableText assembles the text embedded for a project. Non-blank
// fields appear in order, each followed by ". ", tags as "Tags: <tags>.".
// The result is trimmed.
func BuildSearchableText(title, goal, keyTasks, tags string) string {
	var sb strings.Builder

	for _, part := range []string{title, goal, keyTasks} {
		if strings.TrimSpace(part) != "" {
			sb.WriteString(part)
			sb.WriteString(". ")
		}
	}
	if strings.TrimSpace(tags) != "" {
		sb.WriteString("Tags: ")
		sb.WriteString(tags)
		sb.WriteString(".")
	}

	return strings.TrimSpace(sb.String())
}
