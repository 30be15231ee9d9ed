package ticket

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func workerClaims() *Claims {
	return &Claims{
		Role:         RoleWorkerGPU,
		Subject:      "worker-7",
		TickBudget:   u64(1000),
		TTL:          u64(120_000),
		IssuedAtMS:   1_700_000_000_000,
		MountService: "gpu",
		MountAt:      "/gpu",
		HasScopes:    true,
		Scopes: []Scope{
			{Resource: "/gpu/GPU-0", Verb: 'w', RatePerS: 16},
			{Resource: "/queen/telemetry", Verb: 'r', RatePerS: 4},
		},
		Quotas: &Quotas{BandwidthBytes: 1 << 20, CursorResumes: 4, CursorAdvances: 64},
	}
}

func TestRoundTrip(t *testing.T) {
	original := workerClaims()
	token, err := Encode(original)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, Prefix))

	decoded, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestRoundTripMinimalQueen(t *testing.T) {
	original := &Claims{
		Role:         RoleQueen,
		IssuedAtMS:   42,
		MountService: "queen",
		MountAt:      "/queen",
	}
	token, err := Encode(original)
	require.NoError(t, err)

	decoded, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

// Any truncation of the hex payload must fail decoding; the cursor either
// runs out mid-field or stops short of the declared end.
func TestTruncationAlwaysFails(t *testing.T) {
	token, err := Encode(workerClaims())
	require.NoError(t, err)

	body := token[len(Prefix):]
	sep := strings.LastIndex(body, ".")
	payloadHex, macHex := body[:sep], body[sep+1:]

	for cut := 0; cut < len(payloadHex); cut += 2 {
		truncated := Prefix + payloadHex[:cut] + "." + macHex
		if _, err := DecodeClaims(truncated); err == nil {
			t.Fatalf("truncated payload at %d hex chars was accepted", cut)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Encode(workerClaims())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"no prefix", strings.TrimPrefix(valid, "cohesix-")},
		{"no separator", strings.ReplaceAll(valid, ".", "")},
		{"bad payload hex", Prefix + "zz.deadbeef"},
		{"short mac", Prefix + "0100" + ".abcd"},
		{"trailing payload bytes", func() string {
			sep := strings.LastIndex(valid, ".")
			return valid[:sep] + "00" + valid[sep:]
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClaims(tt.token)
			assert.Error(t, err)
			assert.IsType(t, &TicketError{}, err)
		})
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	token, err := Encode(workerClaims())
	require.NoError(t, err)
	// Version is the first payload byte, so the first two hex chars.
	bad := Prefix + "02" + token[len(Prefix)+2:]
	_, err = DecodeClaims(bad)
	assert.Error(t, err)
}

func TestNormalizeRole(t *testing.T) {
	for alias, want := range map[string]string{
		"queen":        RoleQueen,
		"Queen":        RoleQueen,
		"worker":       RoleWorkerHeartbeat,
		" WORKER-GPU ": RoleWorkerGPU,
		"worker-bus":   RoleWorkerBus,
	} {
		got, err := NormalizeRole(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, got, alias)
	}

	_, err := NormalizeRole("drone")
	assert.Error(t, err)
}

func TestNormalizeTicketQueen(t *testing.T) {
	// Queen attaches without a ticket.
	got, err := NormalizeTicket("queen", "", 0, true)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A present queen ticket is still fully decoded.
	_, err = NormalizeTicket("queen", "cohesix-ticket-bogus.bogus", 0, true)
	assert.Error(t, err)

	queenToken, err := Encode(&Claims{Role: RoleQueen, MountService: "queen", MountAt: "/queen"})
	require.NoError(t, err)
	got, err = NormalizeTicket("queen", queenToken, 0, true)
	require.NoError(t, err)
	assert.Equal(t, queenToken, got)
}

func TestNormalizeTicketWorker(t *testing.T) {
	_, err := NormalizeTicket("worker-gpu", "", 0, true)
	assert.Error(t, err, "worker role must require a ticket")

	// Queen-role ticket presented for a worker role is a role mismatch.
	queenToken, err := Encode(&Claims{
		Role: RoleQueen, Subject: "ops", MountService: "queen", MountAt: "/queen",
	})
	require.NoError(t, err)
	_, err = NormalizeTicket("worker-gpu", queenToken, 0, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	// Missing subject is rejected even when the role matches.
	noSubject, err := Encode(&Claims{Role: RoleWorkerGPU, MountService: "gpu", MountAt: "/gpu"})
	require.NoError(t, err)
	_, err = NormalizeTicket("worker-gpu", noSubject, 0, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")

	good, err := Encode(&Claims{
		Role: RoleWorkerGPU, Subject: "worker-7", MountService: "gpu", MountAt: "/gpu",
	})
	require.NoError(t, err)
	got, err := NormalizeTicket("worker-gpu", good, 0, true)
	require.NoError(t, err)
	assert.Equal(t, good, got)
}

func TestNormalizeTicketLengthBound(t *testing.T) {
	token, err := Encode(workerClaims())
	require.NoError(t, err)
	_, err = NormalizeTicket("worker-gpu", token, 16, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
