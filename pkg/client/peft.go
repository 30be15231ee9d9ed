package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/backend"
)

// activeModelPath is the namespace file notified on activation so running
// workers pick up the new adapter.
const activeModelPath = "/gpu/models/active"

// PeftExport copies a training job's artifact bundle from the export tree
// into outDir/<jobID>/. Artifacts already on disk are left untouched.
func (c *Client) PeftExport(jobID, outDir string, a *audit.Transcript) error {
	if err := validateComponent(jobID); err != nil {
		return err
	}
	policy := c.cfg.Peft.Export
	jobRoot := policy.Root + "/" + jobID
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", outDir, err)
	}

	entries, err := c.backend.List(policy.Root)
	if err != nil {
		return err
	}
	a.PushAck("OK", "LS", "path="+policy.Root)
	if !contains(entries, jobID) {
		return backend.Errorf("missing export job %s", jobID)
	}
	if _, err := c.backend.List(jobRoot); err != nil {
		return err
	}
	a.PushAck("OK", "LS", "path="+jobRoot)

	artifacts := []struct {
		name     string
		maxBytes int
	}{
		{"telemetry.cbor", policy.MaxTelemetryBytes},
		{"base_model.ref", policy.MaxBaseModelBytes},
		{"policy.toml", policy.MaxPolicyBytes},
	}
	for _, artifact := range artifacts {
		path := jobRoot + "/" + artifact.name
		maxBytes := artifact.maxBytes
		if maxBytes <= 0 {
			maxBytes = c.cfg.Read.MaxGPUStatusBytes
		}
		payload, err := c.backend.ReadFile(path, maxBytes)
		if err != nil {
			return err
		}
		a.PushAck("OK", "CAT", "path="+path)
		target := filepath.Join(outDir, jobID, artifact.name)
		if err := writeSegment(target, payload); err != nil {
			return err
		}
	}
	c.logger.Info().Str("job_id", jobID).Str("out_dir", outDir).Msg("export copied")
	return nil
}

// ImportArgs names the inputs of a registry import: the trained adapter
// bundle, the export job it derives from, and the registry to install
// into.
type ImportArgs struct {
	ModelID      string
	AdapterDir   string
	ExportRoot   string
	JobID        string
	RegistryRoot string
}

// PeftImport installs an adapter bundle into the registry under
// available/<modelID>/, verifying provenance artifacts and recording
// their digests in the manifest. The manifest is written last and
// atomically: its presence means the import completed.
func (c *Client) PeftImport(args ImportArgs, a *audit.Transcript) error {
	if err := validateComponent(args.ModelID); err != nil {
		return err
	}
	if err := validateComponent(args.JobID); err != nil {
		return err
	}
	exportPolicy := c.cfg.Peft.Export
	importPolicy := c.cfg.Peft.Import
	activatePolicy := c.cfg.Peft.Activate

	if err := enforceIDBytes(args.ModelID, activatePolicy.MaxModelIDBytes); err != nil {
		return err
	}
	if err := enforceIDBytes(args.JobID, activatePolicy.MaxModelIDBytes); err != nil {
		return err
	}

	if !isDir(args.AdapterDir) {
		return backend.Errorf("adapter directory %s does not exist", args.AdapterDir)
	}
	exportDir := filepath.Join(args.ExportRoot, args.JobID)
	if !isDir(exportDir) {
		return backend.Errorf("export job directory %s does not exist", exportDir)
	}

	baseModel, err := readSingleLine(filepath.Join(exportDir, "base_model.ref"), exportPolicy.MaxBaseModelBytes)
	if err != nil {
		return err
	}
	policyHash, err := hashFile(filepath.Join(exportDir, "policy.toml"), exportPolicy.MaxPolicyBytes)
	if err != nil {
		return err
	}
	telemetryHash, err := hashFile(filepath.Join(exportDir, "telemetry.cbor"), exportPolicy.MaxTelemetryBytes)
	if err != nil {
		return err
	}

	adapterPath := filepath.Join(args.AdapterDir, "adapter.safetensors")
	loraPath := filepath.Join(args.AdapterDir, "lora.json")
	if !isFile(adapterPath) {
		return backend.Errorf("missing adapter file %s", adapterPath)
	}
	if !isFile(loraPath) {
		return backend.Errorf("missing lora metadata file %s", loraPath)
	}

	targetDir := filepath.Join(args.RegistryRoot, "available", args.ModelID)
	if isFile(filepath.Join(targetDir, "manifest.toml")) {
		return backend.Errorf("model %s already imported", args.ModelID)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", targetDir, err)
	}

	adapterHash, err := copyWithHash(adapterPath, filepath.Join(targetDir, "adapter.safetensors"), importPolicy.MaxAdapterBytes)
	if err != nil {
		return err
	}
	loraHash, err := copyWithHash(loraPath, filepath.Join(targetDir, "lora.json"), importPolicy.MaxLoraBytes)
	if err != nil {
		return err
	}
	var metricsHash *artifactHash
	if metricsPath := filepath.Join(args.AdapterDir, "metrics.json"); isFile(metricsPath) {
		hash, err := copyWithHash(metricsPath, filepath.Join(targetDir, "metrics.json"), importPolicy.MaxMetricsBytes)
		if err != nil {
			return err
		}
		metricsHash = &hash
	}

	manifest := renderManifest(args.ModelID, baseModel, args.JobID,
		adapterHash, loraHash, metricsHash, policyHash, telemetryHash)
	if importPolicy.MaxManifestBytes > 0 && len(manifest) > importPolicy.MaxManifestBytes {
		return backend.Errorf("manifest bytes %d exceeds max_manifest_bytes %d",
			len(manifest), importPolicy.MaxManifestBytes)
	}
	if err := writeAtomic(filepath.Join(targetDir, "manifest.toml"), []byte(manifest)); err != nil {
		return err
	}
	a.PushLine(fmt.Sprintf("peft import model=%s adapter_bytes=%d", args.ModelID, adapterHash.Bytes))
	c.logger.Info().Str("model_id", args.ModelID).Str("job_id", args.JobID).
		Int("adapter_bytes", adapterHash.Bytes).Msg("adapter imported")
	return nil
}

// PeftActivate makes an imported model the active one, remembering the
// prior model for rollback, and notifies the namespace. State files are
// only rewritten after the manifest check, so a failed activation never
// shifts the registry.
func (c *Client) PeftActivate(modelID, registryRoot string, a *audit.Transcript) error {
	if err := validateComponent(modelID); err != nil {
		return err
	}
	policy := c.cfg.Peft.Activate
	if err := enforceIDBytes(modelID, policy.MaxModelIDBytes); err != nil {
		return err
	}
	manifestPath := filepath.Join(registryRoot, "available", modelID, "manifest.toml")
	if !isFile(manifestPath) {
		return backend.Errorf("model %s is not available", modelID)
	}

	state, err := loadState(registryRoot, policy)
	if err != nil {
		return err
	}
	state.Previous = state.Current
	state.Current = modelID

	if err := writeAtomic(filepath.Join(registryRoot, "active"), []byte(modelID+"\n")); err != nil {
		return err
	}
	if err := writeState(registryRoot, policy, state); err != nil {
		return err
	}

	written, err := c.backend.WriteAppend(activeModelPath, []byte(modelID+"\n"))
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", activeModelPath, written))
	a.PushLine("peft activated model=" + modelID)
	c.logger.Info().Str("model_id", modelID).Msg("model activated")
	return nil
}

// PeftRollback swaps the active model back to the previously active one.
func (c *Client) PeftRollback(registryRoot string, a *audit.Transcript) error {
	policy := c.cfg.Peft.Activate
	state, err := loadState(registryRoot, policy)
	if err != nil {
		return err
	}
	previous := state.Previous
	if previous == "" {
		return backend.Errorf("no previous model available for rollback")
	}
	manifestPath := filepath.Join(registryRoot, "available", previous, "manifest.toml")
	if !isFile(manifestPath) {
		return backend.Errorf("model %s is not available", previous)
	}

	current := state.Current
	state.Current = previous
	state.Previous = current

	if err := writeAtomic(filepath.Join(registryRoot, "active"), []byte(previous+"\n")); err != nil {
		return err
	}
	if err := writeState(registryRoot, policy, state); err != nil {
		return err
	}

	written, err := c.backend.WriteAppend(activeModelPath, []byte(previous+"\n"))
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", activeModelPath, written))
	a.PushLine(fmt.Sprintf("peft rollback from=%s to=%s", current, previous))
	c.logger.Info().Str("from", current).Str("to", previous).Msg("model rolled back")
	return nil
}

func contains(entries []string, name string) bool {
	for _, entry := range entries {
		if entry == name {
			return true
		}
	}
	return false
}
