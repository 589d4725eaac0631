package cmd

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
)

var (
	docsCached     bool
	docsClearCache bool
	docsFull       bool
	docsYes        bool
)

// docsCmd groups the document management commands
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage documents in the knowledge base",
	Long: `List, inspect, upload and delete the documents answers are drawn from.

Documents can be named by id, by exact name, or by a unique prefix of the name.`,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Long: `List indexed documents.

The listing is saved on disk; when the server is unreachable the saved copy is
shown instead. --cached skips the server while the saved copy is younger than
catalog_ttl.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r := newRenderer(cmd.OutOrStdout())
		printer := internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		disk := internal.NewCacheManager(cfg.CacheDir)

		if docsClearCache {
			if err := disk.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		if docsCached {
			valid, err := disk.IsCacheValid(cfg.ServerURL, cfg.CatalogTTL)
			if err == nil && valid {
				docs, fetchedAt, err := disk.LoadDocuments(cfg.ServerURL)
				if err == nil {
					internal.LogInfo("Loading from cache...")
					r.Documents(docs, internal.AllDocuments)
					r.printf("\n%d document(s), cached %s\n", len(docs), formatAge(fetchedAt))
					return nil
				}
			}
			internal.LogDebug("Cached listing unusable, fetching from server")
		}

		catalog := newCatalog(newClient())
		var listing internal.Listing
		err := printer.Progress(ctx, "Fetching documents", func() error {
			var err error
			listing, err = catalog.Refresh(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		if listing.Stale() {
			printer.Warning(fmt.Sprintf("Server unavailable (%v); showing listing cached %s",
				listing.Err, formatAge(listing.FetchedAt)))
		}

		r.Documents(listing.Documents, internal.AllDocuments)
		r.printf("\n%d document(s)\n", len(listing.Documents))
		return nil
	},
}

var docsShowCmd = &cobra.Command{
	Use:   "show <doc>",
	Short: "Show the indexed chunks of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newClient()
		doc, err := findDocument(cmd, newCatalog(client), args[0])
		if err != nil {
			return err
		}

		preview, err := client.PreviewDocument(ctx, doc.DocID)
		if err != nil {
			return fmt.Errorf("failed to preview %s: %w", doc.DocName, err)
		}

		r := newRenderer(cmd.OutOrStdout())
		r.printf("%s %s\n", r.style(titleStyle, preview.DocName), r.style(idStyle, "("+preview.DocID+")"))
		r.printf("%s\n\n", r.style(dimStyle, fmt.Sprintf("%s, %d chunks", preview.DocType, preview.ChunkCount)))

		if r.md != nil && docsFull {
			var b strings.Builder
			for _, chunk := range preview.Chunks {
				fmt.Fprintf(&b, "### Chunk %d\n\n%s\n\n", chunk.ChunkIndex+1, chunk.Content)
			}
			r.Markdown(b.String())
			return nil
		}
		for _, chunk := range preview.Chunks {
			content := chunk.Content
			if !docsFull {
				content = snippet(content, snippetWidth)
			}
			r.printf("%s %s\n", r.style(headerStyle, fmt.Sprintf("[%d]", chunk.ChunkIndex+1)), content)
		}
		return nil
	},
}

var docsRmCmd = &cobra.Command{
	Use:     "rm <doc>",
	Aliases: []string{"delete"},
	Short:   "Delete a document from the knowledge base",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newClient()
		catalog := newCatalog(client)
		doc, err := findDocument(cmd, catalog, args[0])
		if err != nil {
			return err
		}

		printer := internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		if !docsYes {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Delete %s (%s)? [y/N] ", doc.DocName, doc.DocID)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if !confirmed(answer) {
				printer.Info("Nothing deleted")
				return nil
			}
		}

		if err := client.DeleteDocument(ctx, doc.DocID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", doc.DocName, err)
		}
		refreshCatalog(cmd, catalog)
		printer.Success(fmt.Sprintf("Deleted %s", doc.DocName))
		return nil
	},
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload and index documents",
	Long: fmt.Sprintf(`Upload documents to be chunked and indexed.

Accepted types: %s. Files larger than %d MB are rejected before upload.`,
		strings.Join(internal.AllowedExtensions, " "), internal.MaxUploadSize>>20),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		for _, path := range args {
			if _, err := internal.ValidateUpload(path); err != nil {
				return err
			}
		}

		client := newClient()
		printer := internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		steps := make([]internal.ProgressStep, 0, len(args))
		for _, path := range args {
			path := path
			steps = append(steps, internal.ProgressStep{
				Message: "Uploading " + filepath.Base(path),
				Fn: func() error {
					resp, err := client.UploadDocument(ctx, path)
					if err != nil {
						return err
					}
					printer.Success(fmt.Sprintf("Indexed %s as %s (%d chunks)", resp.DocName, resp.DocID, resp.ChunkCount))
					return nil
				},
			})
		}

		err := printer.ProgressSteps(ctx, steps)
		refreshCatalog(cmd, newCatalog(client))
		return err
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsRmCmd, docsUploadCmd)

	docsListCmd.Flags().BoolVar(&docsCached, "cached", false, "Use the saved listing while it is younger than catalog_ttl")
	docsListCmd.Flags().BoolVar(&docsClearCache, "clear-cache", false, "Discard the saved listing first")
	docsShowCmd.Flags().BoolVar(&docsFull, "full", false, "Print whole chunks instead of one-line snippets")
	docsRmCmd.Flags().BoolVarP(&docsYes, "yes", "y", false, "Do not ask for confirmation")
}

// findDocument resolves a user reference against the current listing
func findDocument(cmd *cobra.Command, catalog *internal.Catalog, query string) (internal.DocumentInfo, error) {
	listing, err := catalog.Documents(cmd.Context())
	if err != nil {
		return internal.DocumentInfo{}, fmt.Errorf("failed to list documents: %w", err)
	}
	return internal.MatchDocument(listing.Documents, query)
}

// refreshCatalog re-reads the listing after a change so the saved copy stays current
func refreshCatalog(cmd *cobra.Command, catalog *internal.Catalog) {
	catalog.Invalidate()
	if _, err := catalog.Documents(cmd.Context()); err != nil {
		internal.LogDebug("Failed to refresh document listing: %v", err)
	}
}
