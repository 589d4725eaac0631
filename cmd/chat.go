package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
)

var chatDoc string

const chatHelp = `Commands:
  /scope [doc|all]        Show or change which documents answers draw from
  /docs                   List documents in the knowledge base
  /stop                   Stop the answer being streamed
  /clear                  Start over with an empty conversation
  /export <path> [fmt]    Save the conversation (json, jsonl, md, yaml, sqlite)
  /help                   Show this help
  /quit                   Leave the session
Anything else is sent as a question. Ctrl-C stops an answer, or exits when idle.`

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive question-and-answer session.

Answers stream in as they are generated and list the snippets they were drawn
from. Follow-up questions carry the earlier conversation, up to the last scope
change. Type /help inside the session for commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newClient()
		catalog := newCatalog(client)

		scope := internal.AllDocuments
		if chatDoc != "" {
			s, err := catalog.Resolve(ctx, chatDoc)
			if err != nil {
				return err
			}
			scope = s
		}

		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)

		ctrl := internal.NewSessionController(client,
			internal.WithTopK(cfg.TopK),
			internal.WithInitialScope(scope),
			internal.WithLogger(internal.Logger()),
		)
		repl := newChatREPL(ctrl, catalog, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), interrupts)
		return repl.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatDoc, "doc", "d", "", "Start scoped to this document (id or name)")
}

// chatREPL drives one controller from line input
type chatREPL struct {
	ctrl       *internal.SessionController
	catalog    *internal.Catalog
	in         io.Reader
	r          *renderer
	printer    *internal.Printer
	interrupts <-chan os.Signal
	startedAt  time.Time

	view         *answerView
	confirmClear bool
}

func newChatREPL(ctrl *internal.SessionController, catalog *internal.Catalog, in io.Reader, out, errOut io.Writer, interrupts <-chan os.Signal) *chatREPL {
	return &chatREPL{
		ctrl:       ctrl,
		catalog:    catalog,
		in:         in,
		r:          newRenderer(out),
		printer:    internal.NewPrinter(out, errOut),
		interrupts: interrupts,
		startedAt:  time.Now(),
	}
}

// Run reads commands until /quit, end of input, an idle interrupt or ctx ends.
// At end of input an answer still streaming is allowed to finish.
func (c *chatREPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.ctrl.Close()

	updates, unsubscribe := c.ctrl.Subscribe()
	defer unsubscribe()

	lines := readLines(ctx, c.in)
	inputDone := false

	c.r.printf("Session %s, scope: %s. Type /help for commands.\n", c.ctrl.ID(), c.ctrl.Scope())
	c.r.Prompt(c.ctrl.Scope())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.interrupts:
			if c.stop() {
				c.prompt()
				continue
			}
			c.r.printf("\n")
			return nil

		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if c.view == nil || !c.view.Update(snap) {
				continue
			}
			c.view = nil
			if inputDone {
				return nil
			}
			c.r.Prompt(snap.Scope)

		case line, ok := <-lines:
			if !ok {
				inputDone = true
				lines = nil
				if c.view == nil {
					c.r.printf("\n")
					return nil
				}
				continue
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// readLines delivers input lines until EOF or ctx ends
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			internal.LogDebug("Input closed: %v", err)
		}
	}()
	return lines
}

func (c *chatREPL) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)

	if c.confirmClear {
		c.confirmClear = false
		if confirmed(line) {
			c.stop()
			c.ctrl.Clear()
			c.printer.Success("Conversation cleared")
		} else {
			c.printer.Info("Conversation kept")
		}
		c.prompt()
		return false
	}

	switch {
	case line == "":
		c.prompt()
		return false
	case strings.HasPrefix(line, "/"):
		quit := c.command(ctx, line)
		if !quit && !c.confirmClear {
			c.prompt()
		}
		return quit
	}

	if !c.ctrl.Send(ctx, line) {
		c.printer.Warning("Still answering; /stop to cancel")
		return false
	}
	c.view = newAnswerView(c.r, lastMessageID(c.ctrl.Snapshot()), false)
	return false
}

// prompt shows the input prompt unless an answer is being printed
func (c *chatREPL) prompt() {
	if c.view == nil {
		c.r.Prompt(c.ctrl.Scope())
	}
}

func (c *chatREPL) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit":
		return true

	case "/help":
		c.r.printf("%s\n", chatHelp)

	case "/stop":
		if !c.stop() {
			c.printer.Info("Nothing to stop")
		}

	case "/clear":
		if len(c.ctrl.Snapshot().Messages) == 0 {
			c.printer.Info("Nothing to clear")
			break
		}
		c.confirmClear = true
		c.r.printf("Clear the conversation? [y/N] ")

	case "/scope":
		c.scope(ctx, strings.Join(args, " "))

	case "/docs":
		listing, err := c.catalog.Documents(ctx)
		if err != nil {
			c.printer.Error(fmt.Sprintf("Failed to list documents: %v", err))
			break
		}
		if listing.Stale() {
			c.printer.Warning(fmt.Sprintf("Server unavailable; listing cached %s", formatAge(listing.FetchedAt)))
		}
		c.r.Documents(listing.Documents, c.ctrl.Scope())

	case "/export":
		if len(args) == 0 || len(args) > 2 {
			c.printer.Warning("Usage: /export <path> [format]")
			break
		}
		format := ""
		if len(args) == 2 {
			format = args[1]
		}
		session, err := writeTranscript(ctx, c.ctrl.Snapshot(), c.startedAt, args[0], format)
		if err != nil {
			c.printer.Error(err.Error())
			break
		}
		c.printer.Success(fmt.Sprintf("Exported %d messages to %s", len(session.Messages), args[0]))

	default:
		c.printer.Warning(fmt.Sprintf("Unknown command %s; /help lists commands", name))
	}
	return false
}

func (c *chatREPL) scope(ctx context.Context, query string) {
	if query == "" {
		c.printer.Info(fmt.Sprintf("Scope: %s", c.ctrl.Scope()))
		return
	}

	scope, err := c.catalog.Resolve(ctx, query)
	if err != nil {
		c.printer.Error(err.Error())
		return
	}

	wasLoading := c.ctrl.Loading()
	if !c.ctrl.SetScope(scope) {
		c.printer.Info(fmt.Sprintf("Already scoped to %s", scope))
		return
	}
	if wasLoading {
		c.endAnswer()
	}

	snap := c.ctrl.Snapshot()
	if n := len(snap.Messages); n > 0 && snap.Messages[n-1].IsBoundary() {
		c.r.Boundary(snap.Messages[n-1].Content)
		return
	}
	c.printer.Info(fmt.Sprintf("Scope: %s", scope))
}

// stop cancels the answer in flight, reporting whether there was one
func (c *chatREPL) stop() bool {
	if !c.ctrl.Stop() {
		return false
	}
	c.endAnswer()
	return true
}

// endAnswer flushes the current view after its stream was stopped
func (c *chatREPL) endAnswer() {
	if c.view == nil {
		return
	}
	c.view.Update(c.ctrl.Snapshot())
	c.view = nil
	c.r.printf("%s\n", c.r.style(dimStyle, "[stopped]"))
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
