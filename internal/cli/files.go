// Package cli file operation commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/onlyoffice/pipedrive-int/internal/actions"
	"github.com/onlyoffice/pipedrive-int/internal/catalog"
	"github.com/onlyoffice/pipedrive-int/internal/events"
	"github.com/onlyoffice/pipedrive-int/internal/fileutil"
	"github.com/onlyoffice/pipedrive-int/internal/models"
	"github.com/onlyoffice/pipedrive-int/internal/progress"
	"github.com/onlyoffice/pipedrive-int/internal/upload"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Deal file operations (list, create, upload, download, rename, rm)",
		Long:  `Commands for managing the file attachments of one deal.`,
	}

	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesCreateCmd())
	filesCmd.AddCommand(newFilesUploadCmd())
	filesCmd.AddCommand(newFilesDownloadCmd())
	filesCmd.AddCommand(newFilesRenameCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())

	return filesCmd
}

// newFilesListCmd creates the 'files list' command.
func newFilesListCmd() *cobra.Command {
	var limit int
	var all bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the deal's file attachments",
		Long: `List the file attachments of a deal, one page at a time.

Examples:
  # First page of files on deal 42
  pipedrive-int files list --deal 42

  # Every file, following pagination
  pipedrive-int files list --deal 42 --all

  # Keep the listing fresh in the background until Ctrl+C
  pipedrive-int files list --deal 42 --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			bus := events.NewBus()
			query := s.newCatalog(deal, token, limit, catalog.WithBus(bus))
			if err := query.Fetch(ctx); err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}
			for all && query.HasNextPage() {
				if err := query.FetchNextPage(ctx); err != nil {
					return fmt.Errorf("failed to list files: %w", err)
				}
			}

			printListing(query)

			if !watch {
				return nil
			}

			// Reprint on every background refetch until the signal handler
			// cancels the root context.
			unsubscribe := bus.Subscribe(func(ev events.Event) {
				ce, ok := ev.(events.CatalogEvent)
				if !ok {
					return
				}
				if ev.Type() == events.EventCatalogError {
					GetLogger().Error().Err(ce.Err).Msg("catalog refresh failed")
					return
				}
				fmt.Println()
				printListing(query)
			})
			defer unsubscribe()

			fmt.Println("\nWatching for changes, Ctrl+C to stop.")
			query.AutoRefresh(ctx)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().BoolVar(&all, "all", false, "Follow pagination to the end")
	cmd.Flags().BoolVar(&watch, "watch", false, "Auto-refresh the listing until interrupted")

	return cmd
}

// printListing renders the current catalog snapshot.
func printListing(query *catalog.Query) {
	files := query.Files()
	if len(files) == 0 {
		fmt.Println("No files attached to this deal.")
		return
	}

	for _, f := range files {
		marker := " "
		if fileutil.IsEditable(f.Name) {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-24s %s\n", marker, f.ID, f.UpdateTime, f.Name)
	}
	if query.HasNextPage() {
		fmt.Println("\nMore files available, rerun with --all.")
	}
}

// newFilesCreateCmd creates the 'files create' command.
func newFilesCreateCmd() *cobra.Command {
	var fileType string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a blank document attached to the deal",
		Long: `Create a blank document, spreadsheet or presentation attached to
the deal.

Examples:
  # Blank document
  pipedrive-int files create "Quote draft" --deal 42

  # Blank spreadsheet
  pipedrive-int files create "Price list" --deal 42 --type xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			if err := fileutil.ValidateName(args[0]); err != nil {
				return err
			}
			switch fileType {
			case "docx", "xlsx", "pptx":
			default:
				return fmt.Errorf("unsupported document type %q, expected docx, xlsx or pptx", fileType)
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			contextToken, err := s.commands.SignedToken(ctx)
			if err != nil {
				return err
			}

			file, err := s.client.CreateFile(ctx, contextToken, deal, args[0], fileType)
			if err != nil {
				return err
			}

			fmt.Printf("Created %s (%s)\n", file.Name, file.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&fileType, "type", "docx", "Document type (docx, xlsx, pptx)")

	return cmd
}

// dealUploader adapts the API client to the upload.Uploader contract for one
// deal and access token.
type dealUploader struct {
	s     *session
	token string
	deal  string
}

func (u dealUploader) Upload(ctx context.Context, name string, content io.Reader) (*models.File, error) {
	return u.s.client.UploadFile(ctx, u.token, u.deal, name, content)
}

func (u dealUploader) Delete(ctx context.Context, fileID string) error {
	return u.s.client.DeleteFile(ctx, u.token, fileID)
}

// newFilesUploadCmd creates the 'files upload' command.
func newFilesUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files to the deal",
		Long: `Upload up to 5 local files (20 MB each) as deal attachments. Files
upload concurrently; a summary is printed once the batch settles.

Examples:
  # Upload a single file
  pipedrive-int files upload quote.docx --deal 42

  # Upload several files at once
  pipedrive-int files upload quote.docx terms.pdf prices.xlsx --deal 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			// One live bar for a single file; concurrent bars garble the
			// terminal, so batches report per-file via the event log.
			var reporter progress.Reporter = progress.NewNoOpProgress()
			if len(args) == 1 {
				reporter = progress.NewCLIProgress()
			}

			bus := events.NewBus()
			unsubscribe := bus.Subscribe(func(ev events.Event) {
				ue, ok := ev.(events.UploadEvent)
				if !ok {
					return
				}
				switch ev.Type() {
				case events.EventUploadStarted:
					GetLogger().Info().Str("file", ue.FileName).Str("size", fileutil.FormatBytes(ue.Size)).Msg("upload started")
				case events.EventUploadCompleted:
					GetLogger().Info().Str("file", ue.FileName).Msg("upload completed")
				case events.EventUploadFailed:
					GetLogger().Error().Err(ue.Err).Str("file", ue.FileName).Msg("upload failed")
				case events.EventUploadCancelled:
					GetLogger().Info().Str("file", ue.FileName).Msg("upload cancelled")
				}
			})
			defer unsubscribe()

			manager := upload.NewManager(
				dealUploader{s: s, token: token, deal: deal},
				s.commands,
				GetLogger(),
				upload.WithBus(bus),
			)

			files := make([]upload.LocalFile, 0, len(args))
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("cannot read %s: %w", path, err)
				}
				path := path
				size := info.Size()
				files = append(files, upload.LocalFile{
					Name: filepath.Base(path),
					Size: size,
					Open: func() (io.ReadCloser, error) {
						f, err := os.Open(path)
						if err != nil {
							return nil, err
						}
						reporter.Start(size, filepath.Base(path))
						return readCloser{
							Reader: progress.NewReader(f, reporter),
							closer: f,
						}, nil
					},
				})
			}

			batch, err := manager.UploadBatch(ctx, files)
			if err != nil {
				return err
			}
			reporter.Finish()

			if len(batch.Failed) > 0 {
				return fmt.Errorf("%d of %d files failed to upload", len(batch.Failed), len(files))
			}
			return nil
		},
	}

	return cmd
}

// readCloser pairs a wrapped reader with the file it draws from.
type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc readCloser) Close() error { return rc.closer.Close() }

// newDispatcher builds an action dispatcher for commands that act on one
// existing file.
func (s *session) newDispatcher(navigator actions.Navigator) *actions.Dispatcher {
	if navigator == nil {
		navigator = actions.NavigatorFunc(func(ctx context.Context, target string) error {
			return openInBrowser(ctx, target)
		})
	}
	opener := actions.OpenerFunc(func(ctx context.Context, target string) error {
		return openInBrowser(ctx, target)
	})
	return actions.New(s.client, s.tokens, s.commands, navigator, opener, s.cfg, GetLogger())
}

// newFilesDownloadCmd creates the 'files download' command.
func newFilesDownloadCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Open a file's signed download link",
		Long: `Resolve the short-lived signed download link for a file and open it
in the default browser.

Examples:
  # Open the download in the browser
  pipedrive-int files download 981 --deal 42

  # Print the link instead of opening it
  pipedrive-int files download 981 --deal 42 --print`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			file, err := s.findFile(ctx, deal, token, args[0])
			if err != nil {
				return err
			}

			if printOnly {
				link, err := s.client.DownloadURL(ctx, token, file.ID)
				if err != nil {
					return err
				}
				fmt.Println(link)
				return nil
			}

			return s.newDispatcher(nil).Download(ctx, file)
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the download link instead of opening it")

	return cmd
}

// newFilesRenameCmd creates the 'files rename' command.
func newFilesRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <file-id> <new-name>",
		Short: "Rename a file, keeping its extension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			file, err := s.findFile(ctx, deal, token, args[0])
			if err != nil {
				return err
			}

			renamed, err := s.newDispatcher(nil).Rename(ctx, file, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", file.Name, renamed.Name)
			return nil
		},
	}

	return cmd
}

// newFilesDeleteCmd creates the 'files rm' command.
func newFilesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <file-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a file from the deal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			deal, err := requireDeal()
			if err != nil {
				return err
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			file, err := s.findFile(ctx, deal, token, args[0])
			if err != nil {
				return err
			}

			return s.newDispatcher(nil).Delete(ctx, file)
		},
	}

	return cmd
}
