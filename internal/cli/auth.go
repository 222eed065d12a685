package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthWhoamiCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var assertion, subject, email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a provider identity assertion",
		Long: `Exchanges a provider-issued identity assertion (such as a Google
ID token) for an Involy session token. The assertion is verified
server-side; the CLI never inspects it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if assertion == "" {
				assertion = promptInput("Identity assertion: ")
			}
			if subject == "" {
				subject = promptInput("Provider subject: ")
			}
			if email == "" {
				email = promptInput("Email: ")
			}

			ctx := context.Background()
			resp, err := apiClient.Verify(ctx, assertion, subject, email)
			if err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}

			viper.Set("auth.token", resp.Token)
			if resp.User != nil {
				viper.Set("auth.email", resp.User.Email)
			}

			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			name := email
			if resp.User != nil && resp.User.Name != "" {
				name = resp.User.Name
			}
			fmt.Printf("Signed in as %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&assertion, "assertion", "", "provider identity assertion")
	cmd.Flags().StringVar(&subject, "subject", "", "provider subject identifier")
	cmd.Flags().StringVar(&email, "email", "", "email address")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("auth.token", "")
			viper.Set("auth.email", "")

			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}

			fmt.Println("Signed out")
			return nil
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			user, err := apiClient.GetCurrentUser(ctx)
			if err != nil {
				return fmt.Errorf("failed to get user info: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(user)
			}

			fmt.Printf("Email: %s\n", user.Email)
			if user.Name != "" {
				fmt.Printf("Name:  %s\n", user.Name)
			}
			fmt.Printf("ID:    %s\n", user.ID)
			return nil
		},
	}
}

func promptInput(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
