package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	askDoc    string
	askOutput string
	askFormat string
	askRaw    bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask one question and print the answer with its sources.

On a terminal the answer is rendered as Markdown once complete; otherwise, or
with --raw, it is streamed as plain text. Use --output to save the exchange.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if strings.TrimSpace(question) == "" {
			return errors.New("question is empty")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client := newClient()
		scope := internal.AllDocuments
		if askDoc != "" {
			s, err := newCatalog(client).Resolve(ctx, askDoc)
			if err != nil {
				return err
			}
			scope = s
		}

		ctrl := internal.NewSessionController(client,
			internal.WithTopK(cfg.TopK),
			internal.WithInitialScope(scope),
			internal.WithLogger(internal.Logger()),
		)
		defer ctrl.Close()

		updates, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		startedAt := time.Now()
		if !ctrl.Send(ctx, question) {
			return errors.New("question was not sent")
		}
		id := lastMessageID(ctrl.Snapshot())

		r := newRenderer(cmd.OutOrStdout())
		view := newAnswerView(r, id, r.tty && !askRaw)
		defer view.Close()

		var g errgroup.Group
		g.Go(func() error {
			for snap := range updates {
				if view.Update(snap) {
					return nil
				}
			}
			return errors.New("session closed before the answer completed")
		})
		g.Go(func() error {
			ctrl.Wait()
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		final := ctrl.Snapshot()
		if askOutput != "" {
			if _, err := writeTranscript(cmd.Context(), final, startedAt, askOutput, askFormat); err != nil {
				return err
			}
			internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Info(fmt.Sprintf("Saved to %s", askOutput))
		}

		if ctx.Err() != nil {
			return errors.New("interrupted")
		}
		if answer, ok := final.Find(id); ok && answer.Error != "" {
			return fmt.Errorf("answer failed: %s", answer.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askDoc, "doc", "d", "", "Restrict retrieval to this document (id or name)")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "Save the exchange to this file")
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "", formatUsage)
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "Stream plain text even on a terminal")
}
