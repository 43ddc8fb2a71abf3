package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/onlyoffice/pipedrive-int/internal/actions"
	"github.com/onlyoffice/pipedrive-int/internal/editor"
)

// newOpenCmd creates the 'open' command.
func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <file-id>",
		Short: "Resolve the editor configuration for a file",
		Long: `Resolve the ONLYOFFICE editor configuration for a file attachment and
print it as JSON. The output is what an embedding page passes to the
editor widget.

Examples:
  pipedrive-int open 981 --deal 42`,
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

			// The dispatcher navigates to an editor page URL; here the
			// "page" resolves the config and prints it.
			navigator := actions.NavigatorFunc(func(ctx context.Context, target string) error {
				parsed, err := url.Parse(target)
				if err != nil {
					return fmt.Errorf("bad editor target: %w", err)
				}
				req := editor.ParseRequest(parsed.Query())

				page := editor.New(s.client, s.commands, GetLogger())
				cfg, err := page.Load(ctx, req)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			})

			return s.newDispatcher(navigator).OpenInEditor(ctx, file)
		},
	}

	return cmd
}
