package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := apiClient.Plans(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(plans)
			}

			table := NewTable("TIER", "INVOICES", "CLIENTS", "FEATURES")
			for _, p := range plans {
				table.AddRow(
					p.Tier,
					formatCeiling(p.Ceilings["invoice"]),
					formatCeiling(p.Ceilings["client"]),
					truncate(strings.Join(p.Features, ", "), 60),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newEntitlementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlements",
		Short: "Show entitlements for the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ent, err := apiClient.Entitlements(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get entitlements: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(ent)
			}

			fmt.Printf("Tier: %s\n", ent.Tier)
			fmt.Printf("Invoices: %s\n", formatCeiling(ent.Ceilings["invoice"]))
			fmt.Printf("Clients:  %s\n", formatCeiling(ent.Ceilings["client"]))
			fmt.Println("Features:")
			for _, f := range ent.Features {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.AddCommand(newCanCreateCmd())
	return cmd
}

func newCanCreateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "can-create <kind>",
		Short: "Check whether another record of a kind may be created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed, err := apiClient.CanCreate(context.Background(), args[0], count)
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(map[string]bool{"allowed": allowed})
			}

			if allowed {
				fmt.Printf("Creating another %s is allowed\n", args[0])
			} else {
				fmt.Printf("Limit reached for %s on the current plan\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "number of records that already exist")
	return cmd
}

func formatCeiling(c int) string {
	if c < 0 {
		return "unlimited"
	}
	return strconv.Itoa(c)
}
