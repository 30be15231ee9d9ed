package types

// Schema identifiers for the JSON line records exchanged with the queen
// node. Every record carries its schema so readers can reject payloads
// written by a newer tool.
const (
	LeaseSchema      = "gpu-lease/v1"
	BreadcrumbSchema = "gpu-breadcrumb/v1"
	TelemetrySchema  = "cohsh-telemetry-push/v1"
)

// Lease states as written into per-GPU lease files.
const (
	LeaseStateActive   = "ACTIVE"
	LeaseStateReleased = "RELEASED"
)

// Breadcrumb events and statuses recorded around command execution.
const (
	BreadcrumbEventStart = "START"
	BreadcrumbEventExit  = "EXIT"

	BreadcrumbStatusRunning = "RUNNING"
	BreadcrumbStatusOK      = "OK"
	BreadcrumbStatusErr     = "ERR"
)

// GPUInfo is the per-device descriptor served from /gpu/<id>/info.
// Field order matches the wire record.
type GPUInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MemoryMB       int    `json:"memory_mb"`
	SMCount        int    `json:"sm_count"`
	DriverVersion  string `json:"driver_version"`
	RuntimeVersion string `json:"runtime_version"`
}

// LeaseEntry is one line of a per-GPU lease file. Entries are append-only;
// the last non-empty line is authoritative.
type LeaseEntry struct {
	Schema   string `json:"schema"`
	State    string `json:"state"`
	GPUID    string `json:"gpu_id"`
	WorkerID string `json:"worker_id"`
	MemMB    int    `json:"mem_mb"`
	Streams  int    `json:"streams"`
	TTLs     int    `json:"ttl_s"`
	Priority int    `json:"priority"`
}

// Breadcrumb is one audit line written to a GPU status file around command
// execution. ExitCode is present only on EXIT records that observed a
// process exit; a command that failed to start carries none.
type Breadcrumb struct {
	Schema   string `json:"schema"`
	Event    string `json:"event"`
	Command  string `json:"command"`
	Status   string `json:"status"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// TelemetryEnvelope is one pushed telemetry record. Payloads larger than
// the record budget are chunked into consecutive envelopes sharing a mime
// type with increasing sequence numbers.
type TelemetryEnvelope struct {
	Schema  string `json:"schema"`
	Seq     int    `json:"seq"`
	Mime    string `json:"mime"`
	Payload string `json:"payload"`
}
