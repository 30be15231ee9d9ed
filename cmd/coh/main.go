package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/backend"
	"github.com/cohesix/cohesix-go/pkg/client"
	"github.com/cohesix/cohesix-go/pkg/config"
	"github.com/cohesix/cohesix-go/pkg/console"
	"github.com/cohesix/cohesix-go/pkg/log"
	"github.com/cohesix/cohesix-go/pkg/paths"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Auth token environment fallbacks, checked in order when --auth-token is
// not set. The final fallback matches the development console default.
const (
	envAuthToken       = "COH_AUTH_TOKEN"
	envAuthTokenLegacy = "COHSH_AUTH_TOKEN"
	defaultAuthToken   = "changeme"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coh",
	Short: "Coh - Cohesix control-plane client",
	Long: `Coh drives a Cohesix queen node's namespace from the host: GPU
inventory and leasing, telemetry transfer under policy quotas, audited
command execution, and the PEFT adapter lifecycle.

The namespace is reached through a mounted filesystem, the framed TCP
console, or a deterministic local mock for development.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: logJSON})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Coh version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("policy", "", "YAML policy file overriding the shipped limits")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit structured JSON logs")
	flags.Bool("mock", false, "Use the seeded local mock backend")
	flags.Bool("include-mig", false, "Seed a MIG partition into the mock fixture")
	flags.String("mock-root", "", "Mock fixture directory (default out/examples/mockfs)")
	flags.String("mount-root", "", "Mounted namespace root directory")
	flags.String("tcp-host", "127.0.0.1", "Console host")
	flags.Int("tcp-port", 31337, "Console port")
	flags.String("auth-token", "", "Console auth token (falls back to "+envAuthToken+")")
	flags.String("role", "queen", "Attach role")
	flags.String("ticket", "", "Capability ticket wire text")
	flags.Duration("timeout", 2*time.Second, "Console I/O timeout")
	flags.Int("max-retries", 3, "Handshake poll budget multiplier")
	flags.String("audit", "", "Write the operation transcript to this file")

	rootCmd.AddCommand(gpuCmd)
	rootCmd.AddCommand(telemetryCmd)
	rootCmd.AddCommand(peftCmd)
	rootCmd.AddCommand(ticketCmd)
}

func loadPolicy(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("policy")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func resolveAuthToken(cmd *cobra.Command) string {
	if token, _ := cmd.Flags().GetString("auth-token"); token != "" {
		return token
	}
	if token := os.Getenv(envAuthToken); token != "" {
		return token
	}
	if token := os.Getenv(envAuthTokenLegacy); token != "" {
		return token
	}
	return defaultAuthToken
}

// buildBackend selects the transport from flags: --mock wins, then
// --mount-root, then the TCP console.
func buildBackend(cmd *cobra.Command, cfg *config.Config) (backend.Backend, error) {
	limits := paths.Limits{MaxLen: cfg.Paths.MaxLen, MaxDepth: cfg.Paths.MaxDepth}

	if mock, _ := cmd.Flags().GetBool("mock"); mock {
		mockRoot, _ := cmd.Flags().GetString("mock-root")
		includeMIG, _ := cmd.Flags().GetBool("include-mig")
		return backend.NewMock(backend.MockOptions{
			Root:       mockRoot,
			IncludeMIG: includeMIG,
			PathLimits: limits,
		})
	}
	if mountRoot, _ := cmd.Flags().GetString("mount-root"); mountRoot != "" {
		return backend.NewFilesystem(mountRoot, limits)
	}

	host, _ := cmd.Flags().GetString("tcp-host")
	port, _ := cmd.Flags().GetInt("tcp-port")
	role, _ := cmd.Flags().GetString("role")
	ticketText, _ := cmd.Flags().GetString("ticket")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	return backend.NewTCP(backend.TCPOptions{
		Host:      host,
		Port:      port,
		AuthToken: resolveAuthToken(cmd),
		Role:      role,
		Ticket:    ticketText,
		Console: console.Config{
			MaxLineLen:  cfg.Console.MaxLineLen,
			MaxFrameLen: cfg.Console.MaxFrameLen,
			Timeout:     timeout,
			MaxRetries:  maxRetries,
		},
		PathLimits:   limits,
		MaxEchoLen:   cfg.Console.MaxEchoLen,
		MaxTicketLen: cfg.Ticket.MaxLen,
	})
}

// withClient builds the configured client, runs fn, then flushes the
// audit transcript if one was requested.
func withClient(cmd *cobra.Command, fn func(*client.Client, *audit.Transcript) error) error {
	cfg, err := loadPolicy(cmd)
	if err != nil {
		return err
	}
	b, err := buildBackend(cmd, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	var transcript *audit.Transcript
	auditPath, _ := cmd.Flags().GetString("audit")
	if auditPath != "" {
		transcript = audit.New()
	}
	runErr := fn(client.New(b, cfg), transcript)
	if auditPath != "" {
		if err := transcript.WriteFile(auditPath); err != nil {
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}
