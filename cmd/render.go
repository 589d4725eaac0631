package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/kbchat/internal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	boundaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

const snippetWidth = 100

// renderer writes conversation output, styled only when out is a terminal
type renderer struct {
	out io.Writer
	tty bool
	md  *glamour.TermRenderer
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out, tty: internal.IsTerminal(out)}
	if r.tty {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(snippetWidth),
		)
		if err != nil {
			internal.LogDebug("Markdown rendering disabled: %v", err)
		} else {
			r.md = md
		}
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.tty {
		return text
	}
	return s.Render(text)
}

func (r *renderer) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Markdown prints text rendered for the terminal, or verbatim elsewhere
func (r *renderer) Markdown(text string) {
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			r.printf("%s", out)
			return
		}
	}
	r.printf("%s\n", strings.TrimRight(text, "\n"))
}

// Sources lists the snippets an answer was drawn from
func (r *renderer) Sources(sources []internal.SourceRef) {
	if len(sources) == 0 {
		return
	}
	r.printf("%s\n", r.style(headerStyle, "Sources:"))
	for i, src := range sources {
		score := fmt.Sprintf("%.0f%%", src.Score*100)
		r.printf("  %d. %s (%s) %s\n", i+1,
			r.style(titleStyle, src.DocName),
			r.style(scoreStyle, score),
			r.style(dimStyle, snippet(src.Content, snippetWidth)))
	}
}

// Boundary prints a scope-change marker
func (r *renderer) Boundary(text string) {
	r.printf("%s\n", r.style(boundaryStyle, "── "+text+" ──"))
}

// Failure prints a failed answer
func (r *renderer) Failure(msg string) {
	r.printf("%s\n", r.style(failureStyle, internal.FailurePrefix+msg))
}

// Prompt prints the input prompt for scope
func (r *renderer) Prompt(scope internal.Scope) {
	label := "kb"
	if !scope.IsAll() {
		label = scope.String()
	}
	r.printf("%s ", r.style(promptStyle, label+">"))
}

// Documents prints a document table, marking the one matching active
func (r *renderer) Documents(docs []internal.DocumentInfo, active internal.Scope) {
	if len(docs) == 0 {
		r.printf("No documents indexed.\n")
		return
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, r.style(headerStyle, "  NAME\tID\tTYPE\tCHUNKS\tADDED"))
	for _, d := range docs {
		marker := " "
		if !active.IsAll() && d.DocID == active.DocID {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %s\t%s\t%s\t%d\t%s\n",
			marker,
			r.style(titleStyle, d.DocName),
			r.style(idStyle, d.DocID),
			d.DocType,
			d.ChunkCount,
			formatAge(d.GetCreatedAt()))
	}
	_ = w.Flush()
}

// snippet flattens whitespace and truncates to n runes
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// answerView prints one assistant message as its snapshots arrive
type answerView struct {
	r        *renderer
	id       internal.MessageID
	printed  int
	markdown bool
	stop     func()
}

// newAnswerView follows the message id. With markdown set nothing is printed
// until the answer completes, then it is rendered as a whole.
func newAnswerView(r *renderer, id internal.MessageID, markdown bool) *answerView {
	return &answerView{
		r:        r,
		id:       id,
		markdown: markdown,
		stop:     internal.StartSpinner(r.out, "Thinking"),
	}
}

// Update prints what is new in snap and reports whether the answer is finished
func (v *answerView) Update(snap internal.Snapshot) bool {
	m, ok := snap.Find(v.id)
	if !ok {
		v.stop()
		return true
	}

	if m.Error != "" {
		v.stop()
		if v.printed > 0 {
			v.r.printf("\n")
		}
		v.r.Failure(m.Error)
		return true
	}

	if !v.markdown && len(m.Content) > v.printed {
		v.stop()
		v.r.printf("%s", m.Content[v.printed:])
		v.printed = len(m.Content)
	}

	if m.Streaming {
		return false
	}

	v.stop()
	switch {
	case v.markdown && m.Content != "":
		v.r.Markdown(m.Content)
	case v.printed > 0:
		v.r.printf("\n")
	}
	v.r.Sources(m.Sources)
	return true
}

// Close releases the spinner if the view is abandoned early
func (v *answerView) Close() {
	v.stop()
}
