package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohesix/cohesix-go/pkg/audit"
)

func seedAdapterDir(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adapter.safetensors"), []byte("adapter-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lora.json"), []byte(`{"rank":8}`), 0o644))
}

func TestPeftRoundTripTranscript(t *testing.T) {
	client, mock, root := newMockClient(t)
	a := audit.New()

	exportOut := filepath.Join(root, "export")
	adapterDir := filepath.Join(root, "adapter")
	registryRoot := filepath.Join(root, "registry")
	seedAdapterDir(t, adapterDir)
	require.NoError(t, os.MkdirAll(registryRoot, 0o755))

	require.NoError(t, client.PeftExport("job_8932", exportOut, a))

	modelID := "llama3-edge-v7"
	previousModelID := "llama3-edge-v6"
	require.NoError(t, client.PeftImport(ImportArgs{
		ModelID:      modelID,
		AdapterDir:   adapterDir,
		ExportRoot:   exportOut,
		JobID:        "job_8932",
		RegistryRoot: registryRoot,
	}, a))
	require.NoError(t, client.PeftImport(ImportArgs{
		ModelID:      previousModelID,
		AdapterDir:   adapterDir,
		ExportRoot:   exportOut,
		JobID:        "job_8932",
		RegistryRoot: registryRoot,
	}, nil))
	require.NoError(t, client.PeftActivate(previousModelID, registryRoot, nil))

	manifestPath := "/gpu/models/available/" + modelID + "/manifest.toml"
	_, err := mock.ReadFile(manifestPath, 8192)
	require.NoError(t, err)
	a.PushAck("OK", "CAT", "path="+manifestPath)

	require.NoError(t, client.PeftActivate(modelID, registryRoot, a))
	require.NoError(t, client.PeftRollback(registryRoot, a))

	expected := []string{
		"OK LS path=/queen/export/lora_jobs",
		"OK LS path=/queen/export/lora_jobs/job_8932",
		"OK CAT path=/queen/export/lora_jobs/job_8932/telemetry.cbor",
		"OK CAT path=/queen/export/lora_jobs/job_8932/base_model.ref",
		"OK CAT path=/queen/export/lora_jobs/job_8932/policy.toml",
		"OK CAT path=/gpu/models/available/llama3-edge-v7/manifest.toml",
		"OK ECHO path=/gpu/models/active bytes=15",
		"OK ECHO path=/gpu/models/active bytes=15",
	}
	assert.Equal(t, expected, normalizeAcks(a.Lines()))

	assert.Contains(t, a.Lines(), "peft import model=llama3-edge-v7 adapter_bytes=13")
	assert.Contains(t, a.Lines(), "peft activated model=llama3-edge-v7")
	assert.Contains(t, a.Lines(), "peft rollback from=llama3-edge-v7 to=llama3-edge-v6")

	state, err := os.ReadFile(filepath.Join(registryRoot, "active_state.toml"))
	require.NoError(t, err)
	assert.Equal(t, "current = \"llama3-edge-v6\"\nprevious = \"llama3-edge-v7\"\n", string(state))

	active, err := os.ReadFile(filepath.Join(registryRoot, "active"))
	require.NoError(t, err)
	assert.Equal(t, "llama3-edge-v6\n", string(active))
}

func TestPeftExportMissingJob(t *testing.T) {
	client, _, root := newMockClient(t)
	err := client.PeftExport("job_0000", filepath.Join(root, "export"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing export job job_0000")
}

func TestPeftImportRefusesExistingModel(t *testing.T) {
	client, _, root := newMockClient(t)

	exportOut := filepath.Join(root, "export")
	adapterDir := filepath.Join(root, "adapter")
	registryRoot := filepath.Join(root, "registry")
	seedAdapterDir(t, adapterDir)
	require.NoError(t, client.PeftExport("job_8932", exportOut, nil))

	args := ImportArgs{
		ModelID:      "dup-model",
		AdapterDir:   adapterDir,
		ExportRoot:   exportOut,
		JobID:        "job_8932",
		RegistryRoot: registryRoot,
	}
	require.NoError(t, client.PeftImport(args, nil))
	err := client.PeftImport(args, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model dup-model already imported")
}

func TestPeftImportManifestContents(t *testing.T) {
	client, _, root := newMockClient(t)

	exportOut := filepath.Join(root, "export")
	adapterDir := filepath.Join(root, "adapter")
	registryRoot := filepath.Join(root, "registry")
	seedAdapterDir(t, adapterDir)
	require.NoError(t, client.PeftExport("job_8932", exportOut, nil))
	require.NoError(t, client.PeftImport(ImportArgs{
		ModelID:      "model-x",
		AdapterDir:   adapterDir,
		ExportRoot:   exportOut,
		JobID:        "job_8932",
		RegistryRoot: registryRoot,
	}, nil))

	manifest, err := os.ReadFile(filepath.Join(registryRoot, "available", "model-x", "manifest.toml"))
	require.NoError(t, err)
	text := string(manifest)
	assert.Contains(t, text, "[model]\nid = \"model-x\"\nbase = \"vision-base-v1\"\n")
	assert.Contains(t, text, "[provenance]\njob_id = \"job_8932\"\napproval = \"pending\"\n")
	assert.Contains(t, text, "adapter_bytes = 13\n")
	assert.NotContains(t, text, "metrics", "no metrics.json was staged")

	copied, err := os.ReadFile(filepath.Join(registryRoot, "available", "model-x", "adapter.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, "adapter-bytes", string(copied))
}

func TestPeftActivateUnavailableModelLeavesStateUntouched(t *testing.T) {
	client, _, root := newMockClient(t)
	registryRoot := filepath.Join(root, "registry")
	require.NoError(t, os.MkdirAll(registryRoot, 0o755))

	err := client.PeftActivate("ghost-model", registryRoot, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model ghost-model is not available")

	_, err = os.Stat(filepath.Join(registryRoot, "active"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(registryRoot, "active_state.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestPeftActivateFailurePreservesPriorState(t *testing.T) {
	client, _, root := newMockClient(t)

	exportOut := filepath.Join(root, "export")
	adapterDir := filepath.Join(root, "adapter")
	registryRoot := filepath.Join(root, "registry")
	seedAdapterDir(t, adapterDir)
	require.NoError(t, client.PeftExport("job_8932", exportOut, nil))
	for _, id := range []string{"model-a", "model-b"} {
		require.NoError(t, client.PeftImport(ImportArgs{
			ModelID:      id,
			AdapterDir:   adapterDir,
			ExportRoot:   exportOut,
			JobID:        "job_8932",
			RegistryRoot: registryRoot,
		}, nil))
	}
	require.NoError(t, client.PeftActivate("model-a", registryRoot, nil))

	// Force the pointer write to fail after the manifest check passes:
	// the rename onto a directory cannot succeed.
	require.NoError(t, os.Remove(filepath.Join(registryRoot, "active")))
	require.NoError(t, os.Mkdir(filepath.Join(registryRoot, "active"), 0o755))

	err := client.PeftActivate("model-b", registryRoot, nil)
	require.Error(t, err)

	state, err := os.ReadFile(filepath.Join(registryRoot, "active_state.toml"))
	require.NoError(t, err)
	assert.Equal(t, "current = \"model-a\"\nprevious = \"\"\n", string(state))

	leftovers, err := filepath.Glob(filepath.Join(registryRoot, "active.partial-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "failed activation must not leave temp files")
}

func TestPeftRollbackRequiresPrevious(t *testing.T) {
	client, _, root := newMockClient(t)
	registryRoot := filepath.Join(root, "registry")
	require.NoError(t, os.MkdirAll(registryRoot, 0o755))

	err := client.PeftRollback(registryRoot, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous model available for rollback")
}
