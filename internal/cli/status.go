package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			health, err := apiClient.Health(ctx)
			ready, readyErr := apiClient.Ready(ctx)

			format := getOutputFormat()
			if format != "table" {
				summary := map[string]interface{}{}
				if err == nil {
					summary["service"] = health.Status
				}
				if readyErr == nil {
					summary["database"] = ready.Database
				}
				summary["signed_in"] = viper.GetString("auth.token") != ""
				return printOutput(summary)
			}

			if err != nil {
				fmt.Printf("Service:  unreachable (%v)\n", err)
			} else {
				fmt.Printf("Service:  %s\n", health.Status)
			}
			if readyErr != nil {
				fmt.Println("Database: unavailable")
			} else {
				fmt.Printf("Database: %s\n", ready.Database)
			}

			if email := viper.GetString("auth.email"); viper.GetString("auth.token") != "" && email != "" {
				fmt.Printf("Session:  signed in as %s\n", email)
			} else {
				fmt.Println("Session:  signed out")
			}
			return nil
		},
	}
}
