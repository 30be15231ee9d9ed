package client

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/backend"
	"github.com/cohesix/cohesix-go/pkg/config"
	"github.com/cohesix/cohesix-go/pkg/log"
	"github.com/cohesix/cohesix-go/pkg/types"
)

// Client runs the coh operation surface against a namespace backend. All
// operations take an optional audit transcript (nil disables recording)
// and record one ack line per backend request plus human-readable result
// lines, so transcripts replay byte-identically across backends.
type Client struct {
	backend backend.Backend
	cfg     *config.Config
	logger  zerolog.Logger
}

// New builds a client over a backend. A nil cfg selects the shipped
// policy defaults.
func New(b backend.Backend, cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Client{
		backend: b,
		cfg:     cfg,
		logger:  log.WithComponent("client"),
	}
}

// LeaseArgs describes a GPU lease request. Priority and the two budget
// fields are optional; absent fields stay off the wire.
type LeaseArgs struct {
	GPUID      string
	MemMB      int
	Streams    int
	TTLs       int
	Priority   *int
	BudgetTTLs *int
	BudgetOps  *int
}

// GPUList enumerates GPU devices, skipping the models and telemetry
// subtrees, and returns their descriptors in sorted id order.
func (c *Client) GPUList(a *audit.Transcript) ([]types.GPUInfo, error) {
	entries, err := c.backend.List("/gpu")
	if err != nil {
		return nil, err
	}
	a.PushAck("OK", "LS", "path=/gpu")
	var gpus []string
	for _, entry := range entries {
		if entry == "models" || entry == "telemetry" {
			continue
		}
		gpus = append(gpus, entry)
	}
	if len(gpus) == 0 {
		a.PushLine("gpu: none")
		return nil, nil
	}
	sort.Strings(gpus)
	output := make([]types.GPUInfo, 0, len(gpus))
	for _, gpuID := range gpus {
		infoPath := fmt.Sprintf("/gpu/%s/info", gpuID)
		payload, err := c.backend.ReadFile(infoPath, c.cfg.Read.MaxGPUInfoBytes)
		if err != nil {
			return nil, err
		}
		a.PushAck("OK", "CAT", "path="+infoPath)
		var info types.GPUInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return nil, backend.Errorf("invalid gpu info JSON in %s", infoPath)
		}
		output = append(output, info)
		a.PushLine(fmt.Sprintf("gpu id=%s name=%s mem_mb=%d sm=%d driver=%s runtime=%s",
			info.ID, info.Name, info.MemoryMB, info.SMCount, info.DriverVersion, info.RuntimeVersion))
	}
	return output, nil
}

// GPUStatus returns the last non-empty line of a device's status file, or
// "EMPTY" when the file holds none.
func (c *Client) GPUStatus(gpuID string, a *audit.Transcript) (string, error) {
	gpuID = trimID(gpuID)
	if gpuID == "" {
		return "", backend.Errorf("gpu id must not be empty")
	}
	statusPath := fmt.Sprintf("/gpu/%s/status", gpuID)
	payload, err := c.backend.ReadFile(statusPath, c.cfg.Read.MaxGPUStatusBytes)
	if err != nil {
		return "", err
	}
	a.PushAck("OK", "CAT", "path="+statusPath)
	line, err := lastNonEmptyLine(payload)
	if err != nil {
		return "", err
	}
	if line == "" {
		return "EMPTY", nil
	}
	return line, nil
}

// GPULease submits a spawn request to the queen control file. The queen
// allocates the worker asynchronously; callers observe the resulting lease
// through the device's lease file.
func (c *Client) GPULease(args LeaseArgs, a *audit.Transcript) error {
	payload, err := buildSpawnPayload(args)
	if err != nil {
		return err
	}
	payload, err = normalizePayload(payload, c.cfg.Console.MaxJSONLen)
	if err != nil {
		return err
	}
	path := c.cfg.Paths.QueenCtl
	written, err := c.backend.WriteAppend(path, []byte(payload))
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", path, written))
	a.PushLine(fmt.Sprintf("lease requested gpu_id=%s mem_mb=%d streams=%d ttl_s=%d",
		args.GPUID, args.MemMB, args.Streams, args.TTLs))
	c.logger.Info().Str("gpu_id", args.GPUID).Int("mem_mb", args.MemMB).Msg("lease requested")
	return nil
}

// QueenKill asks the queen to release a worker and its lease.
func (c *Client) QueenKill(workerID string, a *audit.Transcript) error {
	workerID = trimID(workerID)
	if workerID == "" {
		return backend.Errorf("worker id must not be empty")
	}
	if err := validateComponent(workerID); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"kill": workerID})
	if err != nil {
		return err
	}
	normalized, err := normalizePayload(string(payload), c.cfg.Console.MaxJSONLen)
	if err != nil {
		return err
	}
	path := c.cfg.Paths.QueenCtl
	written, err := c.backend.WriteAppend(path, []byte(normalized))
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", path, written))
	a.PushLine("kill requested worker_id=" + workerID)
	c.logger.Info().Str("worker_id", workerID).Msg("kill requested")
	return nil
}
