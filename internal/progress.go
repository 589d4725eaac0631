package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressStep represents a single step in a multi-step process
type ProgressStep struct {
	Message string
	Fn      func() error
}

// Printer writes status lines, decorated when the target is a terminal
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// NewPrinter creates a printer for the given streams
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// IsTerminal checks if the writer is a terminal
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Success prints a success message
func (p *Printer) Success(message string) {
	if IsTerminal(p.Out) {
		_, _ = fmt.Fprintf(p.Out, "%s %s\n", successStyle.Render("✓"), message)
	} else {
		_, _ = fmt.Fprintln(p.Out, message)
	}
}

// Error prints an error message
func (p *Printer) Error(message string) {
	if IsTerminal(p.Err) {
		_, _ = fmt.Fprintf(p.Err, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		_, _ = fmt.Fprintf(p.Err, "%s\n", message)
	}
}

// Info prints an info message
func (p *Printer) Info(message string) {
	if IsTerminal(p.Out) {
		_, _ = fmt.Fprintf(p.Out, "%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		_, _ = fmt.Fprintln(p.Out, message)
	}
}

// Warning prints a warning message
func (p *Printer) Warning(message string) {
	if IsTerminal(p.Err) {
		_, _ = fmt.Fprintf(p.Err, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		_, _ = fmt.Fprintf(p.Err, "WARNING: %s\n", message)
	}
}

// Progress runs fn behind a spinner on p.Err. Without a terminal the message
// is logged and fn runs plainly.
func (p *Printer) Progress(ctx context.Context, message string, fn func() error) error {
	if !IsTerminal(p.Err) {
		LogDebug("%s", message)
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	stop := StartSpinner(p.Err, message)
	select {
	case err := <-done:
		stop()
		if err != nil {
			_, _ = fmt.Fprintf(p.Err, "\r%s %s\n", errorStyle.Render("✗"), message)
			return err
		}
		_, _ = fmt.Fprintf(p.Err, "\r%s %s\n", successStyle.Render("✓"), message)
		return nil
	case <-ctx.Done():
		stop()
		_, _ = fmt.Fprintln(p.Err)
		return ctx.Err()
	}
}

// ProgressSteps runs steps in order, numbering their messages
func (p *Printer) ProgressSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		msg := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if err := p.Progress(ctx, msg, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// StartSpinner animates message on w until the returned func is called. The
// line is erased on stop. It does nothing when w is not a terminal.
func StartSpinner(w io.Writer, message string) func() {
	if !IsTerminal(w) {
		return func() {}
	}

	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			_, _ = fmt.Fprintf(w, "\r%s %s", progressStyle.Render(spinnerChars[i%len(spinnerChars)]), message)
			select {
			case <-quit:
				_, _ = fmt.Fprintf(w, "\r%*s\r", len([]rune(message))+2, "")
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-finished
		})
	}
}
