package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	cfgFile string
	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"

	// cfg is resolved before any subcommand runs
	cfg *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kbchat",
	Short: "Chat with a document knowledge base from the terminal",
	Long: `A terminal client for a retrieval-augmented knowledge base.

Ask questions about your uploaded documents and watch the answers stream in,
together with the snippets they were drawn from. Conversations can be scoped
to a single document and exported as JSON, JSONL, YAML, Markdown or SQLite.

Quick Start:
  kbchat chat                          # Interactive session
  kbchat ask "What is the refund policy?" --doc handbook.pdf
  kbchat docs list                     # Documents in the knowledge base
  kbchat docs upload notes.md          # Index a new document

Configuration is read from ~/.kbchat/config.yaml, KBCHAT_* environment
variables and flags, in increasing precedence.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := internal.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded

		level, err := internal.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		internal.SetLogLevel(level)
		if verbose {
			internal.SetVerbose(true)
		}
		internal.ConfigureLogging(internal.LogOptions{File: cfg.LogFile})
		if cfg.Source != "" {
			internal.LogDebug("Loaded config from %s", cfg.Source)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.SyncLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.kbchat/config.yaml)")
	rootCmd.PersistentFlags().String("server", internal.DefaultServerURL, "Knowledge base API root")
	rootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file, rotated by size")
	rootCmd.PersistentFlags().Int("top-k", internal.DefaultTopK, "Snippets retrieved per question")
	rootCmd.PersistentFlags().Duration("timeout", internal.DefaultRequestTimeout, "Timeout for non-streaming requests")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// newClient builds an API client from the resolved config
func newClient() *internal.Client {
	return internal.NewClient(cfg.ServerURL, cfg.RequestTimeout)
}

// newCatalog builds a document catalog backed by the on-disk listing cache
func newCatalog(client *internal.Client) *internal.Catalog {
	disk := internal.NewCacheManager(cfg.CacheDir)
	return internal.NewCatalog(client, cfg.ServerURL, disk, cfg.CatalogTTL)
}

// formatAge renders how long ago t was, coarsely
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02")
	}
}
