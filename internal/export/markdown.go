package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/kbchat/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(session.Title()))

	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.ID)
	_, _ = fmt.Fprintf(w, "**Scope:** %s  \n", session.Scope.String())
	if session.Metadata.CreatedAt != "" {
		_, _ = fmt.Fprintf(w, "**Started:** %s  \n", session.Metadata.CreatedAt)
	}
	if session.Metadata.ExportedAt != "" {
		_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", session.Metadata.ExportedAt)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range session.Messages {
		switch msg.Role {
		case internal.RoleSystem:
			_, _ = fmt.Fprintf(w, "> _%s_\n\n", msg.Content)
		case internal.RoleUser:
			_, _ = fmt.Fprintf(w, "**user:**\n\n%s\n\n", escapeMarkdown(msg.Content))
		default:
			// answers are markdown already
			_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", msg.Role, msg.Content)
			writeSources(w, msg.Sources)
		}

		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func writeSources(w io.Writer, sources []internal.SourceRef) {
	if len(sources) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "<details>\n<summary>Sources (%d)</summary>\n\n", len(sources))
	for i, src := range sources {
		snippet := strings.Join(strings.Fields(src.Content), " ")
		_, _ = fmt.Fprintf(w, "%d. **%s** (%.0f%%): %s\n", i+1, src.DocName, src.Score*100, snippet)
	}
	_, _ = fmt.Fprintf(w, "\n</details>\n\n")
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
