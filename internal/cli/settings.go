package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// newSettingsCmd creates the 'settings' command group.
func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Document server settings for the company",
	}

	settingsCmd.AddCommand(newSettingsGetCmd())
	settingsCmd.AddCommand(newSettingsSetCmd())

	return settingsCmd
}

// newSettingsGetCmd creates the 'settings get' command.
func newSettingsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the stored document server settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			s, err := newSession()
			if err != nil {
				return err
			}

			contextToken, err := s.commands.SignedToken(ctx)
			if err != nil {
				return err
			}

			settings, err := s.client.GetSettings(ctx, contextToken)
			if err != nil {
				return err
			}

			fmt.Printf("Address: %s\n", settings.DocAddress)
			fmt.Printf("Header:  %s\n", settings.DocHeader)
			if settings.DocSecret != "" {
				fmt.Println("Secret:  (set)")
			} else {
				fmt.Println("Secret:  (not set)")
			}
			fmt.Printf("Demo:    %t\n", settings.DemoEnabled)
			return nil
		},
	}

	return cmd
}

// newSettingsSetCmd creates the 'settings set' command.
func newSettingsSetCmd() *cobra.Command {
	var address, secret, header string
	var demo bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store document server settings",
		Long: `Store the ONLYOFFICE document server connection for the company.

Examples:
  pipedrive-int settings set --address https://docs.example.com \
    --secret s3cr3t --header Authorization`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			if !demo && address == "" {
				return fmt.Errorf("--address is required unless --demo is set")
			}

			s, err := newSession()
			if err != nil {
				return err
			}

			contextToken, err := s.commands.SignedToken(ctx)
			if err != nil {
				return err
			}

			settings := models.Settings{
				DocAddress:  address,
				DocSecret:   secret,
				DocHeader:   header,
				DemoEnabled: demo,
			}
			if err := s.client.PostSettings(ctx, contextToken, settings); err != nil {
				return err
			}

			fmt.Println("Settings saved.")
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Document server address")
	cmd.Flags().StringVar(&secret, "secret", "", "Document server JWT secret")
	cmd.Flags().StringVar(&header, "header", "Authorization", "JWT header name")
	cmd.Flags().BoolVar(&demo, "demo", false, "Use the hosted demo document server")

	return cmd
}
