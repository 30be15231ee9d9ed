package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/client"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Transfer telemetry segments",
}

var telemetryPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Mirror all telemetry segments to a local directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			stats, err := c.TelemetryPull(outDir, a)
			if err != nil {
				return err
			}
			fmt.Printf("telemetry pulled devices=%d segments=%d bytes=%d\n",
				stats.Devices, stats.Segments, stats.Bytes)
			return nil
		})
	},
}

var telemetryPushCmd = &cobra.Command{
	Use:   "push <device-id>",
	Short: "Push a payload into a fresh telemetry segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, _ := cmd.Flags().GetString("payload")
		payloadFile, _ := cmd.Flags().GetString("payload-file")
		mime, _ := cmd.Flags().GetString("mime")
		if payloadFile != "" {
			data, err := os.ReadFile(payloadFile)
			if err != nil {
				return fmt.Errorf("failed to read payload file: %w", err)
			}
			payload = string(data)
		}
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			result, err := c.TelemetryPush(args[0], payload, mime, a)
			if err != nil {
				return err
			}
			fmt.Printf("telemetry push device=%s seg_id=%s records=%d bytes=%d\n",
				result.DeviceID, result.SegmentID, result.Records, result.Bytes)
			return nil
		})
	},
}

func init() {
	telemetryPullCmd.Flags().String("out", "telemetry", "Local output directory")

	telemetryPushCmd.Flags().String("payload", "", "Inline payload text")
	telemetryPushCmd.Flags().String("payload-file", "", "Read the payload from a file")
	telemetryPushCmd.Flags().String("mime", "text/plain", "Payload mime type")

	telemetryCmd.AddCommand(telemetryPullCmd)
	telemetryCmd.AddCommand(telemetryPushCmd)
}
