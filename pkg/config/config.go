package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every operational limit the client enforces. All limits are
// policy data, never compile-time constants; the zero value is unusable and
// callers should start from Default().
type Config struct {
	Console   ConsoleConfig   `yaml:"console"`
	Paths     PathsConfig     `yaml:"paths"`
	Ticket    TicketConfig    `yaml:"ticket"`
	Read      ReadConfig      `yaml:"read"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Ingest    IngestConfig    `yaml:"telemetry_ingest"`
	Run       RunConfig       `yaml:"run"`
	Peft      PeftConfig      `yaml:"peft"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ConsoleConfig bounds the framed console protocol.
type ConsoleConfig struct {
	MaxLineLen  int `yaml:"max_line_len"`
	MaxEchoLen  int `yaml:"max_echo_len"`
	MaxJSONLen  int `yaml:"max_json_len"`
	MaxFrameLen int `yaml:"max_frame_len"`
}

// PathsConfig bounds namespace paths and names well-known control paths.
type PathsConfig struct {
	MaxLen   int    `yaml:"max_len"`
	MaxDepth int    `yaml:"max_depth"`
	QueenCtl string `yaml:"queen_ctl"`
}

// TicketConfig bounds capability ticket wire text.
type TicketConfig struct {
	MaxLen int `yaml:"max_len"`
}

// ReadConfig caps bounded reads of well-known resources.
type ReadConfig struct {
	MaxDirListBytes   int `yaml:"max_dir_list_bytes"`
	MaxGPUInfoBytes   int `yaml:"max_gpu_info_bytes"`
	MaxGPUStatusBytes int `yaml:"max_gpu_status_bytes"`
}

// TelemetryConfig holds pull-side quotas.
type TelemetryConfig struct {
	Root                   string `yaml:"root"`
	MaxDevices             int    `yaml:"max_devices"`
	MaxSegmentsPerDevice   int    `yaml:"max_segments_per_device"`
	MaxBytesPerSegment     int    `yaml:"max_bytes_per_segment"`
	MaxTotalBytesPerDevice int    `yaml:"max_total_bytes_per_device"`
}

// IngestConfig holds push-side quotas. All three per-device quotas must be
// positive for ingest to be enabled; a zero disables telemetry_push.
type IngestConfig struct {
	Schema                 string `yaml:"schema"`
	MaxRecordBytes         int    `yaml:"max_record_bytes"`
	MaxSegmentsPerDevice   int    `yaml:"max_segments_per_device"`
	MaxBytesPerSegment     int    `yaml:"max_bytes_per_segment"`
	MaxTotalBytesPerDevice int    `yaml:"max_total_bytes_per_device"`
}

// RunConfig groups lease validation and breadcrumb policy for run_command.
type RunConfig struct {
	Lease      LeaseConfig      `yaml:"lease"`
	Breadcrumb BreadcrumbConfig `yaml:"breadcrumb"`
}

// LeaseConfig names the lease schema and the state required for execution.
type LeaseConfig struct {
	Schema      string `yaml:"schema"`
	ActiveState string `yaml:"active_state"`
	MaxBytes    int    `yaml:"max_bytes"`
}

// BreadcrumbConfig bounds the audit breadcrumbs written around commands.
type BreadcrumbConfig struct {
	Schema          string `yaml:"schema"`
	MaxLineBytes    int    `yaml:"max_line_bytes"`
	MaxCommandBytes int    `yaml:"max_command_bytes"`
}

// PeftConfig groups adapter lifecycle policy.
type PeftConfig struct {
	Export   PeftExportConfig   `yaml:"export"`
	Import   PeftImportConfig   `yaml:"import"`
	Activate PeftActivateConfig `yaml:"activate"`
}

// PeftExportConfig caps export artifacts read from the remote node.
type PeftExportConfig struct {
	Root              string `yaml:"root"`
	MaxTelemetryBytes int    `yaml:"max_telemetry_bytes"`
	MaxBaseModelBytes int    `yaml:"max_base_model_bytes"`
	MaxPolicyBytes    int    `yaml:"max_policy_bytes"`
}

// PeftImportConfig caps imported adapter artifacts and the manifest.
type PeftImportConfig struct {
	MaxAdapterBytes  int `yaml:"max_adapter_bytes"`
	MaxLoraBytes     int `yaml:"max_lora_bytes"`
	MaxMetricsBytes  int `yaml:"max_metrics_bytes"`
	MaxManifestBytes int `yaml:"max_manifest_bytes"`
}

// PeftActivateConfig caps registry identifiers and the active-state record.
type PeftActivateConfig struct {
	MaxModelIDBytes int `yaml:"max_model_id_bytes"`
	MaxStateBytes   int `yaml:"max_state_bytes"`
}

// RetryConfig bounds handshake polling and per-read timeouts.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	TimeoutMS   int `yaml:"timeout_ms"`
}

// Default returns the shipped policy. Values mirror the cohsh console
// grammar budgets and the coh host tool policy.
func Default() *Config {
	return &Config{
		Console: ConsoleConfig{
			MaxLineLen:  256,
			MaxEchoLen:  128,
			MaxJSONLen:  192,
			MaxFrameLen: 8192,
		},
		Paths: PathsConfig{
			MaxLen:   96,
			MaxDepth: 8,
			QueenCtl: "/queen/ctl",
		},
		Ticket: TicketConfig{
			MaxLen: 224,
		},
		Read: ReadConfig{
			MaxDirListBytes:   64 * 1024,
			MaxGPUInfoBytes:   16 * 1024,
			MaxGPUStatusBytes: 64 * 1024,
		},
		Telemetry: TelemetryConfig{
			Root:                   "/queen/telemetry",
			MaxDevices:             16,
			MaxSegmentsPerDevice:   64,
			MaxBytesPerSegment:     64 * 1024,
			MaxTotalBytesPerDevice: 1 << 20,
		},
		Ingest: IngestConfig{
			Schema:                 "cohsh-telemetry-push/v1",
			MaxRecordBytes:         4096,
			MaxSegmentsPerDevice:   64,
			MaxBytesPerSegment:     64 * 1024,
			MaxTotalBytesPerDevice: 1 << 20,
		},
		Run: RunConfig{
			Lease: LeaseConfig{
				Schema:      "gpu-lease/v1",
				ActiveState: "ACTIVE",
				MaxBytes:    4096,
			},
			Breadcrumb: BreadcrumbConfig{
				Schema:          "gpu-breadcrumb/v1",
				MaxLineBytes:    256,
				MaxCommandBytes: 128,
			},
		},
		Peft: PeftConfig{
			Export: PeftExportConfig{
				Root:              "/queen/export/lora_jobs",
				MaxTelemetryBytes: 1 << 20,
				MaxBaseModelBytes: 4096,
				MaxPolicyBytes:    64 * 1024,
			},
			Import: PeftImportConfig{
				MaxAdapterBytes:  1 << 28,
				MaxLoraBytes:     64 * 1024,
				MaxMetricsBytes:  64 * 1024,
				MaxManifestBytes: 8192,
			},
			Activate: PeftActivateConfig{
				MaxModelIDBytes: 64,
				MaxStateBytes:   512,
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			TimeoutMS:   2000,
		},
	}
}

// Load reads a YAML policy file over the defaults. Unset fields keep their
// default value, so a policy file only needs the limits it overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects policies the client cannot operate under.
func (c *Config) Validate() error {
	if c.Console.MaxFrameLen < 4 {
		return fmt.Errorf("console.max_frame_len %d is below the frame header size", c.Console.MaxFrameLen)
	}
	if c.Console.MaxLineLen <= 0 {
		return fmt.Errorf("console.max_line_len must be >= 1")
	}
	if c.Console.MaxEchoLen <= 0 {
		return fmt.Errorf("console.max_echo_len must be >= 1")
	}
	if c.Paths.MaxLen <= 0 || c.Paths.MaxDepth <= 0 {
		return fmt.Errorf("paths limits must be >= 1")
	}
	if c.Run.Breadcrumb.MaxCommandBytes > c.Run.Breadcrumb.MaxLineBytes {
		return fmt.Errorf("run.breadcrumb.max_command_bytes %d exceeds max_line_bytes %d",
			c.Run.Breadcrumb.MaxCommandBytes, c.Run.Breadcrumb.MaxLineBytes)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.TimeoutMS <= 0 {
		return fmt.Errorf("retry.timeout_ms must be >= 1")
	}
	return nil
}
