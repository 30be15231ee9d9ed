package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/client"
)

var peftCmd = &cobra.Command{
	Use:   "peft",
	Short: "Manage the PEFT adapter lifecycle",
}

var peftExportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Copy a training job's artifact bundle to a local directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			if err := c.PeftExport(args[0], outDir, a); err != nil {
				return err
			}
			fmt.Printf("peft export job=%s out=%s\n", args[0], outDir)
			return nil
		})
	},
}

var peftImportCmd = &cobra.Command{
	Use:   "import <model-id>",
	Short: "Install an adapter bundle into the model registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adapterDir, _ := cmd.Flags().GetString("adapter-dir")
		exportRoot, _ := cmd.Flags().GetString("export-root")
		jobID, _ := cmd.Flags().GetString("job-id")
		registryRoot, _ := cmd.Flags().GetString("registry-root")
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.PeftImport(client.ImportArgs{
				ModelID:      args[0],
				AdapterDir:   adapterDir,
				ExportRoot:   exportRoot,
				JobID:        jobID,
				RegistryRoot: registryRoot,
			}, a)
		})
	},
}

var peftActivateCmd = &cobra.Command{
	Use:   "activate <model-id>",
	Short: "Make an imported model the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registryRoot, _ := cmd.Flags().GetString("registry-root")
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.PeftActivate(args[0], registryRoot, a)
		})
	},
}

var peftRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the previously active model",
	RunE: func(cmd *cobra.Command, args []string) error {
		registryRoot, _ := cmd.Flags().GetString("registry-root")
		return withClient(cmd, func(c *client.Client, a *audit.Transcript) error {
			return c.PeftRollback(registryRoot, a)
		})
	},
}

func init() {
	peftExportCmd.Flags().String("out", "export", "Local output directory")

	peftImportCmd.Flags().String("adapter-dir", "", "Directory holding adapter.safetensors and lora.json")
	peftImportCmd.Flags().String("export-root", "export", "Local export root from peft export")
	peftImportCmd.Flags().String("job-id", "", "Export job the adapter derives from")
	peftImportCmd.Flags().String("registry-root", "registry", "Model registry root")
	_ = peftImportCmd.MarkFlagRequired("adapter-dir")
	_ = peftImportCmd.MarkFlagRequired("job-id")

	peftActivateCmd.Flags().String("registry-root", "registry", "Model registry root")
	peftRollbackCmd.Flags().String("registry-root", "registry", "Model registry root")

	peftCmd.AddCommand(peftExportCmd)
	peftCmd.AddCommand(peftImportCmd)
	peftCmd.AddCommand(peftActivateCmd)
	peftCmd.AddCommand(peftRollbackCmd)
}
