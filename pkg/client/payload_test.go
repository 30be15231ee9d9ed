package client

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohesix/cohesix-go/pkg/config"
	"github.com/cohesix/cohesix-go/pkg/types"
)

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		want    string
		wantErr string
	}{
		{name: "plain", in: "hello", max: 64, want: "hello\n"},
		{name: "trims whitespace", in: "  hello  ", max: 64, want: "hello\n"},
		{name: "strips double quotes", in: `"hello"`, max: 64, want: "hello\n"},
		{name: "strips single quotes", in: "'hello'", max: 64, want: "hello\n"},
		{name: "empty", in: "   ", max: 64, wantErr: "payload must not be empty"},
		{name: "embedded newline", in: "a\nb", max: 64, wantErr: "single line"},
		{name: "over budget", in: strings.Repeat("x", 65), max: 64, wantErr: "exceeds 64 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePayload(tt.in, tt.max)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSpawnPayload(t *testing.T) {
	payload, err := buildSpawnPayload(LeaseArgs{GPUID: "GPU-0", MemMB: 4096, Streams: 2, TTLs: 120})
	require.NoError(t, err)
	assert.Equal(t, `{"spawn":"gpu","lease":{"gpu_id":"GPU-0","mem_mb":4096,"streams":2,"ttl_s":120}}`, payload)

	payload, err = buildSpawnPayload(LeaseArgs{
		GPUID: "GPU-0", MemMB: 4096, Streams: 2, TTLs: 120,
		Priority: intPtr(1), BudgetTTLs: intPtr(300), BudgetOps: intPtr(50),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"spawn":"gpu","lease":{"gpu_id":"GPU-0","mem_mb":4096,"streams":2,"ttl_s":120,"priority":1},"budget":{"ttl_s":300,"ops":50}}`,
		payload)

	_, err = buildSpawnPayload(LeaseArgs{MemMB: 4096})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu_id required")
}

func TestTruncateToBytesRuneSafe(t *testing.T) {
	text := "héllo wörld"
	for max := 0; max <= len(text); max++ {
		out := truncateToBytes(text, max)
		assert.LessOrEqual(t, len(out), max)
		assert.True(t, utf8.ValidString(out), "max=%d", max)
		assert.True(t, strings.HasPrefix(text, out))
	}
	assert.Equal(t, text, truncateToBytes(text, 1024))
}

func TestBuildTelemetryRecordsReassembles(t *testing.T) {
	payload := strings.Repeat("héllo wörld ", 200)
	records, err := buildTelemetryRecords(payload, "text/plain", "cohsh-telemetry-push/v1", 256)
	require.NoError(t, err)
	require.Greater(t, len(records), 1)

	var rebuilt strings.Builder
	for i, record := range records {
		assert.LessOrEqual(t, len(record), 256)
		var envelope types.TelemetryEnvelope
		require.NoError(t, json.Unmarshal(record, &envelope))
		assert.Equal(t, i+1, envelope.Seq)
		assert.Equal(t, "text/plain", envelope.Mime)
		assert.True(t, utf8.ValidString(envelope.Payload))
		rebuilt.WriteString(envelope.Payload)
	}
	assert.Equal(t, payload, rebuilt.String())
}

func TestBuildTelemetryRecordsRejectsImpossibleBudget(t *testing.T) {
	_, err := buildTelemetryRecords("payload", "text/plain", "cohsh-telemetry-push/v1", 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_record_bytes 32")

	_, err = buildTelemetryRecords("", "text/plain", "cohsh-telemetry-push/v1", 4096)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry payload is empty")
}

func TestBreadcrumbLineTruncatesCommand(t *testing.T) {
	policy := config.BreadcrumbConfig{
		Schema:          "gpu-breadcrumb/v1",
		MaxLineBytes:    256,
		MaxCommandBytes: 128,
	}

	line, err := breadcrumbLine(policy, types.BreadcrumbEventStart, types.BreadcrumbStatusRunning, "echo ok", nil)
	require.NoError(t, err)
	assert.Equal(t,
		`{"schema":"gpu-breadcrumb/v1","event":"START","command":"echo ok","status":"RUNNING"}`+"\n",
		string(line))

	long := strings.Repeat("a", 500)
	line, err = breadcrumbLine(policy, types.BreadcrumbEventStart, types.BreadcrumbStatusRunning, long, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(line), 257)
	var entry types.Breadcrumb
	require.NoError(t, json.Unmarshal(line, &entry))
	assert.LessOrEqual(t, len(entry.Command), 128)
	assert.True(t, strings.HasPrefix(long, entry.Command))
}

func TestBreadcrumbLineExitCodeZeroIsEmitted(t *testing.T) {
	policy := config.BreadcrumbConfig{Schema: "gpu-breadcrumb/v1", MaxLineBytes: 256, MaxCommandBytes: 128}
	line, err := breadcrumbLine(policy, types.BreadcrumbEventExit, types.BreadcrumbStatusOK, "true", intPtr(0))
	require.NoError(t, err)
	assert.Contains(t, string(line), `"exit_code":0`)

	line, err = breadcrumbLine(policy, types.BreadcrumbEventExit, types.BreadcrumbStatusErr, "true", nil)
	require.NoError(t, err)
	assert.NotContains(t, string(line), "exit_code")
}

func TestLastNonEmptyLine(t *testing.T) {
	line, err := lastNonEmptyLine([]byte("one\ntwo\n\n  \n"))
	require.NoError(t, err)
	assert.Equal(t, "two", line)

	line, err = lastNonEmptyLine([]byte("  \n\n"))
	require.NoError(t, err)
	assert.Equal(t, "", line)

	_, err = lastNonEmptyLine([]byte{0xff, 0xfe})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not UTF-8")
}
