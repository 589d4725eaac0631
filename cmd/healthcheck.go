package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the knowledge base server is reachable",
	Long: `Check the health of kbchat by verifying:
  • Configuration resolution
  • Server health endpoint
  • Document listing
  • Listing cache directory

This command is useful for debugging connection issues, especially in CI/CD environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r := newRenderer(cmd.OutOrStdout())
		ok := func(msg string) { r.printf("%s\n", r.style(successStyle, "✅ "+msg)) }
		warn := func(msg string) { r.printf("%s\n", r.style(warningStyle, "⚠️  "+msg)) }
		fail := func(msg string) { r.printf("%s\n", r.style(errorStyle, "❌ "+msg)) }
		detail := func(format string, args ...interface{}) {
			if healthcheckDetails {
				r.printf("   "+format+"\n", args...)
			}
		}

		r.printf("%s\n\n", r.style(sectionStyle, "🔍 kbchat Health Check"))

		// Step 1: Configuration
		r.printf("%s\n", r.style(infoStyle, "Step 1: Resolving configuration..."))
		if cfg.Source != "" {
			ok("Config loaded from " + cfg.Source)
		} else {
			ok("Using defaults (no config file)")
		}
		detail("Server: %s", cfg.ServerURL)
		detail("Top k: %d", cfg.TopK)
		detail("Request timeout: %s", cfg.RequestTimeout)
		r.printf("\n")

		// Step 2: Server health
		r.printf("%s\n", r.style(infoStyle, "Step 2: Contacting server..."))
		client := newClient()
		health, err := client.Health(ctx)
		serverUp := err == nil && health.OK()
		switch {
		case err != nil:
			fail(fmt.Sprintf("Server unreachable: %v", err))
		case !health.OK():
			fail(fmt.Sprintf("Server reports status %q", health.Status))
		default:
			ok("Server is healthy")
			if health.Message != "" {
				detail("Message: %s", health.Message)
			}
		}
		r.printf("\n")

		// Step 3: Document listing
		r.printf("%s\n", r.style(infoStyle, "Step 3: Listing documents..."))
		catalog := newCatalog(client)
		listing, err := catalog.Refresh(ctx)
		docCount := 0
		switch {
		case err != nil:
			fail(fmt.Sprintf("Failed to list documents: %v", err))
		case listing.Stale():
			warn(fmt.Sprintf("Listing unavailable; %d document(s) in cache from %s", len(listing.Documents), formatAge(listing.FetchedAt)))
		default:
			docCount = len(listing.Documents)
			if docCount > 0 {
				ok(fmt.Sprintf("Found %d document(s)", docCount))
			} else {
				warn("No documents indexed yet")
			}
			for i, d := range listing.Documents {
				if i == 5 {
					detail("... and %d more", len(listing.Documents)-5)
					break
				}
				detail("[%d] %s (ID: %s)", i+1, d.DocName, d.DocID)
			}
		}
		r.printf("\n")

		// Step 4: Cache directory
		r.printf("%s\n", r.style(infoStyle, "Step 4: Checking listing cache..."))
		disk := internal.NewCacheManager(cfg.CacheDir)
		if err := disk.EnsureCacheDir(); err != nil {
			warn(fmt.Sprintf("Cache directory unusable: %v", err))
		} else {
			ok("Cache directory available")
			detail("Directory: %s", disk.GetCacheDir())
			if valid, _ := disk.IsCacheValid(cfg.ServerURL, cfg.CatalogTTL); valid {
				detail("Saved listing is current")
			}
		}
		r.printf("\n")

		// Summary
		r.printf("%s\n\n", r.style(sectionStyle, "📊 Summary"))
		if !serverUp {
			fail("Health check failed")
			r.printf("   • Server at %s is not reachable\n", cfg.ServerURL)
			return fmt.Errorf("health check failed: server unavailable")
		}
		ok("Health check passed!")
		r.printf("   • Server: %s\n", cfg.ServerURL)
		r.printf("   • Documents: %d\n", docCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
