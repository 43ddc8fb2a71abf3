package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMeCmd creates the 'me' command.
func newMeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the acting CRM user",
		Long:  `Verify connectivity and show the CRM profile the connector acts as.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			s, err := newSession()
			if err != nil {
				return err
			}

			token, err := s.accessToken(ctx)
			if err != nil {
				return err
			}

			user, err := s.client.GetCRMUser(ctx, token)
			if err != nil {
				return err
			}

			fmt.Printf("User:   %s (%d)\n", user.Name, user.ID)
			fmt.Printf("Email:  %s\n", user.Email)
			fmt.Printf("Locale: %s\n", user.Locale())
			return nil
		},
	}

	return cmd
}
