package console

import (
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxLineLen:  256,
		MaxFrameLen: 8192,
		Timeout:     2 * time.Second,
		MaxRetries:  3,
	}
}

// script drives the server side of one console connection.
type script func(t *testing.T, conn net.Conn)

func startServer(t *testing.T, fn script) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(t, conn)
	}()
	return ln.Addr().String()
}

func serverSend(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	frame := make([]byte, 4+len(line))
	binary.LittleEndian.PutUint32(frame, uint32(len(frame)))
	copy(frame[4:], line)
	if _, err := conn.Write(frame); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func serverRecv(t *testing.T, conn net.Conn) string {
	t.Helper()
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Errorf("server read header: %v", err)
		return ""
	}
	payload := make([]byte, binary.LittleEndian.Uint32(header)-4)
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Errorf("server read payload: %v", err)
		return ""
	}
	return string(payload)
}

// handshake consumes AUTH and ATTACH and acknowledges both.
func handshake(t *testing.T, conn net.Conn) {
	line := serverRecv(t, conn)
	if !strings.HasPrefix(line, "AUTH ") {
		t.Errorf("expected AUTH, got %q", line)
	}
	serverSend(t, conn, "OK AUTH")
	line = serverRecv(t, conn)
	if !strings.HasPrefix(line, "ATTACH ") {
		t.Errorf("expected ATTACH, got %q", line)
	}
	serverSend(t, conn, "OK ATTACH")
}

func TestDialHandshakeToleratesInformationalLines(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		_ = serverRecv(t, conn)
		serverSend(t, conn, "cohesix console v1")
		serverSend(t, conn, "OK AUTH session=1")
		attach := serverRecv(t, conn)
		assert.Equal(t, "ATTACH queen ", attach)
		serverSend(t, conn, "OK ATTACH role=queen")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close(), "close must be idempotent")
}

func TestDialAuthRejected(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		_ = serverRecv(t, conn)
		serverSend(t, conn, "ERR AUTH bad token")
	})

	_, err := Dial(addr, "wrong", "queen", "", testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR AUTH")
}

func TestDialAuthPollBudgetExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1 // 4 polled lines

	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		_ = serverRecv(t, conn)
		for i := 0; i < 5; i++ {
			serverSend(t, conn, "console chatter")
		}
		serverSend(t, conn, "OK AUTH")
	})

	_, err := Dial(addr, "changeme", "queen", "", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth timed out")
}

func TestStreamAccumulatesBody(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		assert.Equal(t, "LS /gpu", serverRecv(t, conn))
		serverSend(t, conn, "OK LS path=/gpu")
		serverSend(t, conn, "GPU-0")
		serverSend(t, conn, "GPU-1")
		serverSend(t, conn, "END")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	lines, err := conn.Stream("LS", "/gpu")
	require.NoError(t, err)
	assert.Equal(t, []string{"GPU-0", "GPU-1"}, lines)
}

func TestStreamErrForVerbAborts(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		_ = serverRecv(t, conn)
		serverSend(t, conn, "ERR CAT no such file")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Stream("CAT", "/gpu/GPU-9/info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR CAT")
}

// An ERR acknowledgement naming a different verb is consumed as an inline
// ack, not treated as fatal for this call. Wire behavior preserved as
// observed against the reference server.
func TestStreamErrForOtherVerbIsNotFatal(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		_ = serverRecv(t, conn)
		serverSend(t, conn, "ERR ECHO stale ack")
		serverSend(t, conn, "body line")
		serverSend(t, conn, "END")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	lines, err := conn.Stream("LS", "/gpu")
	require.NoError(t, err)
	assert.Equal(t, []string{"body line"}, lines)
}

func TestStreamCatSummaryUsedWhenNoBody(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		_ = serverRecv(t, conn)
		serverSend(t, conn, "OK CAT path=/gpu/GPU-0/status data=IDLE")
		serverSend(t, conn, "END")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	lines, err := conn.Stream("CAT", "/gpu/GPU-0/status")
	require.NoError(t, err)
	assert.Equal(t, []string{"IDLE"}, lines)
}

func TestStreamCatSummaryIgnoredWhenBodyStreams(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		_ = serverRecv(t, conn)
		serverSend(t, conn, "OK CAT data=summary")
		serverSend(t, conn, "line-1")
		serverSend(t, conn, "END")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	lines, err := conn.Stream("CAT", "/gpu/GPU-0/status")
	require.NoError(t, err)
	assert.Equal(t, []string{"line-1"}, lines)
}

func TestEcho(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		assert.Equal(t, "ECHO /queen/ctl {\"kill\":\"worker-1\"}", serverRecv(t, conn))
		serverSend(t, conn, "OK ECHO bytes=18")
		assert.Equal(t, "ECHO /queen/ctl", serverRecv(t, conn))
		serverSend(t, conn, "ERR ECHO empty payload rejected")
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Echo("/queen/ctl", "{\"kill\":\"worker-1\"}"))

	err = conn.Echo("/queen/ctl", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR ECHO")
}

func TestRecvRejectsInvalidFrameLength(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		_ = serverRecv(t, conn)
		header := make([]byte, 4)
		binary.LittleEndian.PutUint32(header, 2) // below header size
		_, _ = conn.Write(header)
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Stream("LS", "/gpu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid console frame length")
}

func TestSendRejectsOversizedAndNonASCIILines(t *testing.T) {
	addr := startServer(t, func(t *testing.T, conn net.Conn) {
		handshake(t, conn)
		// No further reads; client-side validation fails before sending.
		time.Sleep(50 * time.Millisecond)
	})

	conn, err := Dial(addr, "changeme", "queen", "", testConfig())
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Echo("/queen/ctl", strings.Repeat("x", 300))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	err = conn.Echo("/queen/ctl", "café")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ASCII")
}
