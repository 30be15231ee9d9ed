package backend

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/cohesix/cohesix-go/pkg/paths"
	"github.com/cohesix/cohesix-go/pkg/types"
)

// Mock state buckets. Worker identity and telemetry segment counters
// persist across reopens so repeated runs against one fixture tree keep
// allocating fresh ids.
var (
	bucketControl   = []byte("control")
	bucketWorkerGPU = []byte("worker_gpu")
	bucketGPUWorker = []byte("gpu_worker")
	bucketTelemetry = []byte("telemetry_segments")
	keyNextWorkerID = []byte("next_worker_id")
	mockStateDBName = ".mockstate.db"
	mockDefaultRoot = filepath.Join("out", "examples", "mockfs")
)

// MockOptions configures the seeded fixture tree.
type MockOptions struct {
	// Root is the host directory to seed; empty selects out/examples/mockfs.
	Root string
	// IncludeMIG adds a MIG-0 partition alongside the two full devices.
	IncludeMIG bool
	PathLimits paths.Limits
}

// Mock is a filesystem backend over a deterministic fixture tree. It
// emulates the queen's control surfaces: writes to /queen/ctl spawn and
// kill workers, and writes to a device's telemetry ctl roll segments.
type Mock struct {
	*Filesystem
	db         *bolt.DB
	includeMIG bool
}

// NewMock seeds (or re-seeds) the fixture tree at root and opens the
// control state database inside it.
func NewMock(opts MockOptions) (*Mock, error) {
	root := opts.Root
	if root == "" {
		root = mockDefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mock root %s: %w", root, err)
	}
	fs, err := newFilesystem(root, opts.PathLimits, "mock")
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(fs.Root(), mockStateDBName), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open mock state db: %w", err)
	}
	m := &Mock{Filesystem: fs, db: db, includeMIG: opts.IncludeMIG}
	if err := m.initState(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := m.seed(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the control state database.
func (m *Mock) Close() error {
	return m.db.Close()
}

func (m *Mock) initState() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketControl, bucketWorkerGPU, bucketGPUWorker, bucketTelemetry} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		control := tx.Bucket(bucketControl)
		if control.Get(keyNextWorkerID) == nil {
			if err := control.Put(keyNextWorkerID, encodeU64(1)); err != nil {
				return err
			}
		}
		telemetry := tx.Bucket(bucketTelemetry)
		if telemetry.Get([]byte("device-1")) == nil {
			if err := telemetry.Put([]byte("device-1"), encodeU64(1)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Mock) seed() error {
	root := m.Root()
	devices := []types.GPUInfo{
		{ID: "GPU-0", Name: "MockGPU", MemoryMB: 8192, SMCount: 80, DriverVersion: "mock", RuntimeVersion: "mock"},
		{ID: "GPU-1", Name: "MockGPU", MemoryMB: 8192, SMCount: 80, DriverVersion: "mock", RuntimeVersion: "mock"},
	}
	if m.includeMIG {
		devices = append(devices, types.GPUInfo{
			ID: "MIG-0", Name: "MockMIG", MemoryMB: 1024, SMCount: 14, DriverVersion: "mock", RuntimeVersion: "mock",
		})
	}
	for _, device := range devices {
		dir := filepath.Join(root, "gpu", device.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to seed %s: %w", dir, err)
		}
		info, err := json.Marshal(device)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "info"), info, 0o644); err != nil {
			return err
		}
		for _, name := range []string{"status", "lease"} {
			if err := touch(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}

	exportDir := filepath.Join(root, "queen", "export", "lora_jobs", "job_8932")
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return err
	}
	seedFiles := map[string]string{
		filepath.Join(exportDir, "telemetry.cbor"): "telemetry-v1\n",
		filepath.Join(exportDir, "base_model.ref"): "vision-base-v1\n",
		filepath.Join(exportDir, "policy.toml"):    "[policy]\nname = \"default\"\n",
	}
	for path, payload := range seedFiles {
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			return err
		}
	}

	manifestDir := filepath.Join(root, "gpu", "models", "available", "llama3-edge-v7")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return err
	}
	manifest := "[model]\nid=\"llama3-edge-v7\"\n"
	if err := os.WriteFile(filepath.Join(manifestDir, "manifest.toml"), []byte(manifest), 0o644); err != nil {
		return err
	}

	segDir := filepath.Join(root, "queen", "telemetry", "device-1", "seg")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(segDir, "seg-000001"), []byte("{\"seq\":1}\n"), 0o644); err != nil {
		return err
	}
	latest := filepath.Join(root, "queen", "telemetry", "device-1", "latest")
	return os.WriteFile(latest, []byte("seg-000001\n"), 0o644)
}

// WriteAppend intercepts the control surfaces before delegating to the
// underlying filesystem append.
func (m *Mock) WriteAppend(path string, payload []byte) (int, error) {
	if strings.HasPrefix(path, "/queen/telemetry/") && strings.HasSuffix(path, "/ctl") {
		parts := strings.Split(path, "/")
		if len(parts) >= 4 {
			if err := m.rollSegment(parts[3]); err != nil {
				return 0, err
			}
		}
	}
	if path == "/queen/ctl" {
		if err := m.handleCtl(payload); err != nil {
			return 0, err
		}
	}
	return m.Filesystem.WriteAppend(path, payload)
}

// rollSegment allocates the next segment id for a device, updates the
// latest pointer, and creates the empty segment file.
func (m *Mock) rollSegment(deviceID string) error {
	var count uint64
	err := m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTelemetry)
		count = decodeU64(bucket.Get([]byte(deviceID))) + 1
		return bucket.Put([]byte(deviceID), encodeU64(count))
	})
	if err != nil {
		return fmt.Errorf("failed to roll telemetry segment: %w", err)
	}
	segID := fmt.Sprintf("seg-%06d", count)
	base := filepath.Join(m.Root(), "queen", "telemetry", deviceID)
	if err := os.MkdirAll(filepath.Join(base, "seg"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(base, "latest"), []byte(segID+"\n"), 0o644); err != nil {
		return err
	}
	return touch(filepath.Join(base, "seg", segID))
}

// handleCtl emulates the queen control file: spawn requests allocate a
// worker and write an ACTIVE lease entry, kill requests release the lease.
// Unparseable payloads are ignored, matching a real node that logs and
// drops junk control writes.
func (m *Mock) handleCtl(payload []byte) error {
	text := strings.TrimSpace(string(payload))
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil
	}
	if raw, ok := data["kill"]; ok {
		workerID, ok := raw.(string)
		if !ok {
			return nil
		}
		return m.killWorker(workerID)
	}
	if spawn, _ := data["spawn"].(string); spawn != "gpu" {
		return nil
	}
	lease, _ := data["lease"].(map[string]any)
	gpuID, _ := lease["gpu_id"].(string)
	if gpuID == "" {
		return nil
	}
	return m.spawnWorker(gpuID, lease)
}

func (m *Mock) spawnWorker(gpuID string, lease map[string]any) error {
	var workerID string
	err := m.db.Update(func(tx *bolt.Tx) error {
		control := tx.Bucket(bucketControl)
		next := decodeU64(control.Get(keyNextWorkerID))
		workerID = fmt.Sprintf("worker-%d", next)
		if err := control.Put(keyNextWorkerID, encodeU64(next+1)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketWorkerGPU).Put([]byte(workerID), []byte(gpuID)); err != nil {
			return err
		}
		return tx.Bucket(bucketGPUWorker).Put([]byte(gpuID), []byte(workerID))
	})
	if err != nil {
		return fmt.Errorf("failed to record spawned worker: %w", err)
	}
	entry := types.LeaseEntry{
		Schema:   types.LeaseSchema,
		State:    types.LeaseStateActive,
		GPUID:    gpuID,
		WorkerID: workerID,
		MemMB:    intField(lease, "mem_mb", 1024),
		Streams:  intField(lease, "streams", 1),
		TTLs:     intField(lease, "ttl_s", 60),
		Priority: intField(lease, "priority", 1),
	}
	return m.writeLease(gpuID, entry)
}

func (m *Mock) killWorker(workerID string) error {
	var gpuID string
	err := m.db.Update(func(tx *bolt.Tx) error {
		workers := tx.Bucket(bucketWorkerGPU)
		value := workers.Get([]byte(workerID))
		if value == nil {
			return nil
		}
		gpuID = string(value)
		if err := workers.Delete([]byte(workerID)); err != nil {
			return err
		}
		return tx.Bucket(bucketGPUWorker).Delete([]byte(gpuID))
	})
	if err != nil {
		return fmt.Errorf("failed to release worker: %w", err)
	}
	if gpuID == "" {
		return nil
	}
	entry := types.LeaseEntry{
		Schema:   types.LeaseSchema,
		State:    types.LeaseStateReleased,
		GPUID:    gpuID,
		WorkerID: workerID,
		MemMB:    1024,
		Streams:  1,
		TTLs:     0,
		Priority: 1,
	}
	return m.writeLease(gpuID, entry)
}

// writeLease replaces the lease file with a single authoritative entry.
func (m *Mock) writeLease(gpuID string, entry types.LeaseEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	leasePath := filepath.Join(m.Root(), "gpu", gpuID, "lease")
	if err := os.MkdirAll(filepath.Dir(leasePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(leasePath, append(payload, '\n'), 0o644)
}

// WorkerForGPU reports the worker currently holding a device, if any.
func (m *Mock) WorkerForGPU(gpuID string) (string, bool) {
	var workerID string
	_ = m.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketGPUWorker).Get([]byte(gpuID)); value != nil {
			workerID = string(value)
		}
		return nil
	})
	return workerID, workerID != ""
}

func intField(m map[string]any, key string, fallback int) int {
	if value, ok := m[key].(float64); ok {
		return int(value)
	}
	return fallback
}

func touch(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeU64(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
