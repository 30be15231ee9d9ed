package backend

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/cohesix/cohesix-go/pkg/console"
	"github.com/cohesix/cohesix-go/pkg/log"
	"github.com/cohesix/cohesix-go/pkg/metrics"
	"github.com/cohesix/cohesix-go/pkg/paths"
	"github.com/cohesix/cohesix-go/pkg/ticket"
)

// TCPOptions configures a console-backed namespace transport.
type TCPOptions struct {
	Host         string
	Port         int
	AuthToken    string
	Role         string
	Ticket       string
	Console      console.Config
	PathLimits   paths.Limits
	MaxEchoLen   int
	MaxTicketLen int
}

// TCP serves a remote namespace over one console connection. The role and
// ticket are normalized before the connection attaches, so a malformed
// ticket never reaches the wire.
type TCP struct {
	conn       *console.Conn
	limits     paths.Limits
	maxEchoLen int
	logger     zerolog.Logger
}

// NewTCP normalizes the role and ticket, dials the console endpoint, and
// runs the attach handshake.
func NewTCP(opts TCPOptions) (*TCP, error) {
	role, err := ticket.NormalizeRole(opts.Role)
	if err != nil {
		return nil, err
	}
	token, err := ticket.NormalizeTicket(role, opts.Ticket, opts.MaxTicketLen, true)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	conn, err := console.Dial(addr, opts.AuthToken, role, token, opts.Console)
	if err != nil {
		return nil, err
	}
	return &TCP{
		conn:       conn,
		limits:     opts.PathLimits,
		maxEchoLen: opts.MaxEchoLen,
		logger:     log.WithBackend("tcp"),
	}, nil
}

// Close tears the console connection down.
func (t *TCP) Close() error {
	return t.conn.Close()
}

func (t *TCP) validate(path string) error {
	_, err := paths.Validate(path, t.limits)
	return err
}

func (t *TCP) List(path string) ([]string, error) {
	metrics.BackendOps.WithLabelValues("tcp", "list").Inc()
	if err := t.validate(path); err != nil {
		metrics.BackendErrors.WithLabelValues("tcp", "list").Inc()
		return nil, err
	}
	names, err := t.conn.Stream("LS", path)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("tcp", "list").Inc()
		return nil, err
	}
	return names, nil
}

func (t *TCP) ReadFile(path string, maxBytes int) ([]byte, error) {
	metrics.BackendOps.WithLabelValues("tcp", "read").Inc()
	payload, err := t.readFile(path, maxBytes)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("tcp", "read").Inc()
		return nil, err
	}
	metrics.BackendBytes.WithLabelValues("tcp", "in").Add(float64(len(payload)))
	return payload, nil
}

func (t *TCP) readFile(path string, maxBytes int) ([]byte, error) {
	if err := t.validate(path); err != nil {
		return nil, err
	}
	lines, err := t.conn.Stream("CAT", path)
	if err != nil {
		return nil, err
	}
	payload := []byte(strings.Join(lines, "\n"))
	if len(payload) > maxBytes {
		return nil, Errorf("read %s exceeds max bytes %d", path, maxBytes)
	}
	return payload, nil
}

// WriteAppend sends payload as a single ECHO line. The payload must be
// UTF-8 and, after trimming one trailing newline, a single line within the
// echo budget. The reported byte count is the payload length as submitted;
// the remote node decides its own on-disk framing.
func (t *TCP) WriteAppend(path string, payload []byte) (int, error) {
	metrics.BackendOps.WithLabelValues("tcp", "write").Inc()
	if err := t.validate(path); err != nil {
		metrics.BackendErrors.WithLabelValues("tcp", "write").Inc()
		return 0, err
	}
	if !utf8.Valid(payload) {
		metrics.BackendErrors.WithLabelValues("tcp", "write").Inc()
		return 0, Errorf("payload must be UTF-8")
	}
	line := strings.TrimSuffix(string(payload), "\n")
	if strings.ContainsAny(line, "\n\r") {
		metrics.BackendErrors.WithLabelValues("tcp", "write").Inc()
		return 0, Errorf("payload must be a single line of text")
	}
	if t.maxEchoLen > 0 && len(line) > t.maxEchoLen {
		metrics.BackendErrors.WithLabelValues("tcp", "write").Inc()
		return 0, Errorf("payload exceeds %d bytes", t.maxEchoLen)
	}
	if err := t.conn.Echo(path, line); err != nil {
		metrics.BackendErrors.WithLabelValues("tcp", "write").Inc()
		return 0, err
	}
	metrics.BackendBytes.WithLabelValues("tcp", "out").Add(float64(len(payload)))
	t.logger.Debug().Str("path", path).Int("bytes", len(payload)).Msg("echoed")
	return len(payload), nil
}
