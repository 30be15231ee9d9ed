package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohesix/cohesix-go/pkg/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Work with capability tickets",
}

var ticketInspectCmd = &cobra.Command{
	Use:   "inspect <ticket>",
	Short: "Decode a ticket and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := ticket.DecodeClaims(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("role: %s\n", claims.Role)
		if claims.Subject != "" {
			fmt.Printf("subject: %s\n", claims.Subject)
		}
		fmt.Printf("issued_at_ms: %d\n", claims.IssuedAtMS)
		fmt.Printf("mount: service=%q at=%q\n", claims.MountService, claims.MountAt)
		if claims.TickBudget != nil {
			fmt.Printf("tick_budget: %d\n", *claims.TickBudget)
		}
		if claims.OpBudget != nil {
			fmt.Printf("op_budget: %d\n", *claims.OpBudget)
		}
		if claims.TTL != nil {
			fmt.Printf("ttl_ms: %d\n", *claims.TTL)
		}
		if claims.HasScopes {
			fmt.Printf("scopes: %d\n", len(claims.Scopes))
			for _, scope := range claims.Scopes {
				fmt.Printf("  resource=%s verb=0x%02x rate_per_s=%d\n",
					scope.Resource, scope.Verb, scope.RatePerS)
			}
		}
		if claims.Quotas != nil {
			fmt.Printf("quotas: bandwidth_bytes=%d cursor_resumes=%d cursor_advances=%d\n",
				claims.Quotas.BandwidthBytes, claims.Quotas.CursorResumes, claims.Quotas.CursorAdvances)
		}
		return nil
	},
}

func init() {
	ticketCmd.AddCommand(ticketInspectCmd)
}
