package client

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/cohesix/cohesix-go/pkg/backend"
	"github.com/cohesix/cohesix-go/pkg/config"
	"github.com/cohesix/cohesix-go/pkg/paths"
	"github.com/cohesix/cohesix-go/pkg/types"
)

func trimID(value string) string {
	return strings.TrimSpace(value)
}

func validateComponent(name string) error {
	return paths.ValidateComponent(name)
}

// lastNonEmptyLine returns the trimmed last non-empty line of payload, or
// "" when the payload holds none.
func lastNonEmptyLine(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", backend.Errorf("lease file is not UTF-8")
	}
	lines := strings.Split(string(payload), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line, nil
		}
	}
	return "", nil
}

// normalizePayload prepares a control payload for the wire: trims
// whitespace, strips one matching pair of surrounding quotes, enforces the
// single-line rule and the byte budget, and appends the trailing newline.
func normalizePayload(payload string, maxBytes int) (string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return "", backend.Errorf("payload must not be empty")
	}
	for _, quote := range []string{"\"", "'"} {
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, quote) && strings.HasSuffix(trimmed, quote) {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
	}
	if strings.ContainsAny(trimmed, "\n\r\x00") {
		return "", backend.Errorf("payload must be a single line of text")
	}
	if maxBytes > 0 && len(trimmed) > maxBytes {
		return "", backend.Errorf("payload exceeds %d bytes", maxBytes)
	}
	return trimmed + "\n", nil
}

type spawnLease struct {
	GPUID    string `json:"gpu_id"`
	MemMB    int    `json:"mem_mb"`
	Streams  int    `json:"streams"`
	TTLs     int    `json:"ttl_s"`
	Priority *int   `json:"priority,omitempty"`
}

type spawnBudget struct {
	TTLs *int `json:"ttl_s,omitempty"`
	Ops  *int `json:"ops,omitempty"`
}

type spawnRequest struct {
	Spawn  string       `json:"spawn"`
	Lease  spawnLease   `json:"lease"`
	Budget *spawnBudget `json:"budget,omitempty"`
}

func buildSpawnPayload(args LeaseArgs) (string, error) {
	if args.GPUID == "" {
		return "", backend.Errorf("gpu_id required")
	}
	request := spawnRequest{
		Spawn: "gpu",
		Lease: spawnLease{
			GPUID:    args.GPUID,
			MemMB:    args.MemMB,
			Streams:  args.Streams,
			TTLs:     args.TTLs,
			Priority: args.Priority,
		},
	}
	if args.BudgetTTLs != nil || args.BudgetOps != nil {
		request.Budget = &spawnBudget{TTLs: args.BudgetTTLs, Ops: args.BudgetOps}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

type telemetryCtl struct {
	New  string `json:"new"`
	Mime string `json:"mime"`
}

func buildTelemetryCtl(mime string) (string, error) {
	payload, err := json.Marshal(telemetryCtl{New: "segment", Mime: mime})
	if err != nil {
		return "", err
	}
	return string(payload) + "\n", nil
}

// buildTelemetryRecords chunks payload into newline-terminated envelope
// records, each within maxRecordBytes once encoded. Chunk boundaries are
// rune-safe so no record carries a split UTF-8 sequence.
func buildTelemetryRecords(payload, mime, schema string, maxRecordBytes int) ([][]byte, error) {
	if payload == "" {
		return nil, backend.Errorf("telemetry payload is empty")
	}
	remaining := payload
	seq := 1
	var records [][]byte
	for remaining != "" {
		payloadLen := selectTelemetryPayloadLen(remaining, seq, mime, schema, maxRecordBytes)
		if payloadLen == 0 {
			return nil, backend.Errorf("telemetry record exceeds max_record_bytes %d", maxRecordBytes)
		}
		chunk := truncateToBytes(remaining, payloadLen)
		record, err := encodeTelemetryRecord(seq, mime, chunk, schema)
		if err != nil {
			return nil, err
		}
		if len(record) > maxRecordBytes {
			return nil, backend.Errorf("telemetry record exceeds max_record_bytes %d", maxRecordBytes)
		}
		records = append(records, record)
		remaining = remaining[len(chunk):]
		seq++
	}
	return records, nil
}

// selectTelemetryPayloadLen binary-searches the largest chunk byte length
// whose encoded record fits the budget. JSON escaping makes encoded size
// non-linear in chunk size, so the search encodes each candidate.
func selectTelemetryPayloadLen(remaining string, seq int, mime, schema string, maxRecordBytes int) int {
	low, high := 0, len(remaining)
	for low < high {
		mid := (low + high + 1) / 2
		candidate := truncateToBytes(remaining, mid)
		record, err := encodeTelemetryRecord(seq, mime, candidate, schema)
		if err == nil && len(record) <= maxRecordBytes {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

func encodeTelemetryRecord(seq int, mime, payload, schema string) ([]byte, error) {
	record, err := json.Marshal(types.TelemetryEnvelope{
		Schema:  schema,
		Seq:     seq,
		Mime:    mime,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return append(record, '\n'), nil
}

// truncateToBytes returns the longest prefix of text that fits maxBytes
// without splitting a rune.
func truncateToBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	count := 0
	for i, r := range text {
		size := utf8.RuneLen(r)
		if count+size > maxBytes {
			return text[:i]
		}
		count += size
	}
	return text
}

// breadcrumbLine encodes a breadcrumb record within the line budget,
// shrinking the command field byte by byte until the encoded line fits.
func breadcrumbLine(policy config.BreadcrumbConfig, event, status, command string, exitCode *int) ([]byte, error) {
	maxCommand := policy.MaxCommandBytes
	if maxCommand <= 0 {
		maxCommand = len(command)
	}
	limit := maxCommand
	if len(command) < limit {
		limit = len(command)
	}
	for {
		entry := types.Breadcrumb{
			Schema:   policy.Schema,
			Event:    event,
			Command:  truncateToBytes(command, limit),
			Status:   status,
			ExitCode: exitCode,
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		if policy.MaxLineBytes <= 0 || len(payload) <= policy.MaxLineBytes {
			return append(payload, '\n'), nil
		}
		if limit == 0 {
			return nil, backend.Errorf("breadcrumb line exceeds max_line_bytes %d", policy.MaxLineBytes)
		}
		limit--
	}
}

func enforceIDBytes(value string, maxBytes int) error {
	if maxBytes > 0 && len(value) > maxBytes {
		return backend.Errorf("id length exceeds max %d", maxBytes)
	}
	return nil
}
