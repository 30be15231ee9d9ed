package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/cohesix/cohesix-go/pkg/backend"
	"github.com/cohesix/cohesix-go/pkg/config"
)

// registryState tracks which adapter is active and which one a rollback
// would restore. It lives in active_state.toml at the registry root; the
// bare "active" pointer file is kept alongside for tools that only need
// the current id.
type registryState struct {
	Current  string `toml:"current"`
	Previous string `toml:"previous"`
}

func loadState(registryRoot string, policy config.PeftActivateConfig) (registryState, error) {
	statePath := filepath.Join(registryRoot, "active_state.toml")
	if !isFile(statePath) {
		current, err := readActivePointer(registryRoot, policy)
		if err != nil {
			return registryState{}, err
		}
		return registryState{Current: current}, nil
	}
	payload, err := os.ReadFile(statePath)
	if err != nil {
		return registryState{}, fmt.Errorf("failed to read %s: %w", statePath, err)
	}
	if policy.MaxStateBytes > 0 && len(payload) > policy.MaxStateBytes {
		return registryState{}, backend.Errorf("state bytes %d exceeds max_state_bytes %d",
			len(payload), policy.MaxStateBytes)
	}
	var state registryState
	if err := toml.Unmarshal(payload, &state); err != nil {
		return registryState{}, backend.Errorf("invalid state file %s: %v", statePath, err)
	}
	return state, nil
}

func writeState(registryRoot string, policy config.PeftActivateConfig, state registryState) error {
	payload := fmt.Sprintf("current = %q\nprevious = %q\n", state.Current, state.Previous)
	if policy.MaxStateBytes > 0 && len(payload) > policy.MaxStateBytes {
		return backend.Errorf("state bytes %d exceeds max_state_bytes %d",
			len(payload), policy.MaxStateBytes)
	}
	return writeAtomic(filepath.Join(registryRoot, "active_state.toml"), []byte(payload))
}

// readActivePointer reads the bare active pointer file, tolerating its
// absence. The cap allows one byte of slack for the trailing newline.
func readActivePointer(registryRoot string, policy config.PeftActivateConfig) (string, error) {
	path := filepath.Join(registryRoot, "active")
	if !isFile(path) {
		return "", nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if policy.MaxModelIDBytes > 0 && len(payload) > policy.MaxModelIDBytes+1 {
		return "", backend.Errorf("active pointer bytes %d exceeds max_model_id_bytes %d",
			len(payload), policy.MaxModelIDBytes)
	}
	for _, line := range strings.Split(string(payload), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", nil
}

// renderManifest writes the import manifest by hand so the section and
// key order stays byte-stable across versions.
func renderManifest(modelID, baseModel, jobID string, adapter, lora artifactHash, metrics *artifactHash, policyHash, telemetryHash artifactHash) string {
	var out []string
	out = append(out, "[model]")
	out = append(out, fmt.Sprintf("id = %q", modelID))
	out = append(out, fmt.Sprintf("base = %q", baseModel))
	out = append(out, `adapter = "adapter.safetensors"`)
	out = append(out, `lora = "lora.json"`)
	if metrics != nil {
		out = append(out, `metrics = "metrics.json"`)
	}
	out = append(out, "")
	out = append(out, "[provenance]")
	out = append(out, fmt.Sprintf("job_id = %q", jobID))
	out = append(out, `approval = "pending"`)
	out = append(out, "")
	out = append(out, "[hashes]")
	out = append(out, fmt.Sprintf("adapter_sha256 = %q", adapter.SHA256))
	out = append(out, fmt.Sprintf("adapter_bytes = %d", adapter.Bytes))
	out = append(out, fmt.Sprintf("lora_sha256 = %q", lora.SHA256))
	out = append(out, fmt.Sprintf("lora_bytes = %d", lora.Bytes))
	if metrics != nil {
		out = append(out, fmt.Sprintf("metrics_sha256 = %q", metrics.SHA256))
		out = append(out, fmt.Sprintf("metrics_bytes = %d", metrics.Bytes))
	}
	out = append(out, fmt.Sprintf("policy_sha256 = %q", policyHash.SHA256))
	out = append(out, fmt.Sprintf("policy_bytes = %d", policyHash.Bytes))
	out = append(out, fmt.Sprintf("telemetry_sha256 = %q", telemetryHash.SHA256))
	out = append(out, fmt.Sprintf("telemetry_bytes = %d", telemetryHash.Bytes))
	return strings.Join(out, "\n") + "\n"
}
