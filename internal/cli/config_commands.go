package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onlyoffice/pipedrive-int/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Connector configuration",
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigInitCmd())

	return configCmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Gateway URL: %s\n", cfg.GatewayURL)
			fmt.Printf("CRM URL:     %s\n", cfg.CRMURL)
			fmt.Printf("User ID:     %d\n", cfg.UserID)
			fmt.Printf("Company ID:  %d\n", cfg.CompanyID)
			fmt.Printf("Language:    %s\n", cfg.Language)
			fmt.Printf("Timeouts:    read %s, upload %s\n", cfg.Timeouts.Read(), cfg.Timeouts.Upload())
			if cfg.ClientSecret != "" {
				fmt.Println("Secret:      (set)")
			} else {
				fmt.Println("Secret:      (not set)")
			}
			return nil
		},
	}

	return cmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default values to the standard
location (or --config). Edit it afterwards to fill in the gateway URL,
CRM URL and client secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				var err error
				path, err = config.DefaultPath()
				if err != nil {
					return err
				}
			}

			if err := config.Default().Save(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	return cmd
}
