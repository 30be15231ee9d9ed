package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/client"
)

var gpuCmd = &cobra.Command{
	Use:   "gpu",
	Short: "Inspect and lease GPU devices",
}

var gpuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List GPU devices and their descriptors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			gpus, err := c.GPUList(a)
			if err != nil {
				return err
			}
			if len(gpus) == 0 {
				fmt.Println("gpu: none")
				return nil
			}
			for _, gpu := range gpus {
				fmt.Printf("gpu id=%s name=%s mem_mb=%d sm=%d driver=%s runtime=%s\n",
					gpu.ID, gpu.Name, gpu.MemoryMB, gpu.SMCount, gpu.DriverVersion, gpu.RuntimeVersion)
			}
			return nil
		})
	},
}

var gpuStatusCmd = &cobra.Command{
	Use:   "status <gpu-id>",
	Short: "Print the last status line of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			status, err := c.GPUStatus(args[0], a)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		})
	},
}

var gpuLeaseCmd = &cobra.Command{
	Use:   "lease <gpu-id>",
	Short: "Request a GPU lease from the queen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memMB, _ := cmd.Flags().GetInt("mem-mb")
		streams, _ := cmd.Flags().GetInt("streams")
		ttl, _ := cmd.Flags().GetInt("ttl-s")
		leaseArgs := client.LeaseArgs{
			GPUID:   args[0],
			MemMB:   memMB,
			Streams: streams,
			TTLs:    ttl,
		}
		if cmd.Flags().Changed("priority") {
			priority, _ := cmd.Flags().GetInt("priority")
			leaseArgs.Priority = &priority
		}
		if cmd.Flags().Changed("budget-ttl-s") {
			budgetTTL, _ := cmd.Flags().GetInt("budget-ttl-s")
			leaseArgs.BudgetTTLs = &budgetTTL
		}
		if cmd.Flags().Changed("budget-ops") {
			budgetOps, _ := cmd.Flags().GetInt("budget-ops")
			leaseArgs.BudgetOps = &budgetOps
		}
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.GPULease(leaseArgs, a)
		})
	},
}

var gpuRunCmd = &cobra.Command{
	Use:   "run <gpu-id> -- <command> [args...]",
	Short: "Run a host command under a device's active lease",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.RunCommand(args[0], args[1:], a)
		})
	},
}

var gpuKillCmd = &cobra.Command{
	Use:   "kill <worker-id>",
	Short: "Ask the queen to release a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.QueenKill(args[0], a)
		})
	},
}

func init() {
	gpuLeaseCmd.Flags().Int("mem-mb", 1024, "Requested memory in MiB")
	gpuLeaseCmd.Flags().Int("streams", 1, "Requested stream count")
	gpuLeaseCmd.Flags().Int("ttl-s", 60, "Lease time-to-live in seconds")
	gpuLeaseCmd.Flags().Int("priority", 0, "Lease priority")
	gpuLeaseCmd.Flags().Int("budget-ttl-s", 0, "Budget time-to-live in seconds")
	gpuLeaseCmd.Flags().Int("budget-ops", 0, "Budget operation count")

	gpuCmd.AddCommand(gpuListCmd)
	gpuCmd.AddCommand(gpuStatusCmd)
	gpuCmd.AddCommand(gpuLeaseCmd)
	gpuCmd.AddCommand(gpuRunCmd)
	gpuCmd.AddCommand(gpuKillCmd)
}
