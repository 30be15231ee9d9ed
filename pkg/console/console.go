package console

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/cohesix/cohesix-go/pkg/log"
	"github.com/cohesix/cohesix-go/pkg/metrics"
)

// frameHeaderLen is the length prefix size; the prefix counts itself.
const frameHeaderLen = 4

// handshakePollMultiplier scales MaxRetries into the number of response
// lines polled before an AUTH/ATTACH handshake times out. Servers may emit
// informational lines ahead of the authoritative acknowledgement.
const handshakePollMultiplier = 4

// Config bounds a console connection.
type Config struct {
	MaxLineLen  int
	MaxFrameLen int
	Timeout     time.Duration
	MaxRetries  int
}

// Conn is one authenticated, attached console connection. All requests are
// strictly request-then-response on a single socket; a protocol violation
// leaves the connection unusable and the caller must reconstruct it.
type Conn struct {
	cfg    Config
	conn   net.Conn
	logger zerolog.Logger
	closed bool
}

// Dial connects to a console endpoint and runs the AUTH then ATTACH
// handshakes. The returned connection is ready for verb requests. The
// ticket may be empty for the queen role.
func Dial(addr, authToken, role, ticket string, cfg Config) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", addr, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to console %s: %w", addr, err)
	}
	c := &Conn{
		cfg:    cfg,
		conn:   netConn,
		logger: log.WithComponent("console"),
	}
	if err := c.auth(authToken); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.attach(role, ticket); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.logger.Debug().Str("addr", addr).Str("role", role).Msg("console attached")
	return c, nil
}

// Close tears the connection down; it is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) sendLine(line string) error {
	if len(line) > c.cfg.MaxLineLen {
		return fmt.Errorf("console line exceeds %d bytes", c.cfg.MaxLineLen)
	}
	for i := 0; i < len(line); i++ {
		if line[i] > 0x7f {
			return errors.New("console line must be ASCII")
		}
	}
	total := len(line) + frameHeaderLen
	if total < frameHeaderLen || total > c.cfg.MaxFrameLen {
		return errors.New("console frame length invalid")
	}
	frame := make([]byte, total)
	binary.LittleEndian.PutUint32(frame, uint32(total))
	copy(frame[frameHeaderLen:], line)
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return fmt.Errorf("failed to arm write deadline: %w", err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write console frame: %w", err)
	}
	metrics.ConsoleFrames.WithLabelValues("out").Inc()
	return nil
}

func (c *Conn) recvExact(buf []byte) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return fmt.Errorf("failed to arm read deadline: %w", err)
	}
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.New("connection closed")
		}
		return fmt.Errorf("failed to read console frame: %w", err)
	}
	return nil
}

func (c *Conn) recvLine() (string, error) {
	header := make([]byte, frameHeaderLen)
	if err := c.recvExact(header); err != nil {
		return "", err
	}
	total := int(binary.LittleEndian.Uint32(header))
	if total < frameHeaderLen || total > c.cfg.MaxFrameLen {
		metrics.ConsoleProtocolErrors.Inc()
		return "", errors.New("invalid console frame length")
	}
	payload := make([]byte, total-frameHeaderLen)
	if err := c.recvExact(payload); err != nil {
		return "", err
	}
	if !utf8.Valid(payload) {
		metrics.ConsoleProtocolErrors.Inc()
		return "", errors.New("console payload not UTF-8")
	}
	metrics.ConsoleFrames.WithLabelValues("in").Inc()
	return strings.TrimRight(string(payload), "\r\n"), nil
}

func (c *Conn) auth(token string) error {
	if err := c.sendLine("AUTH " + token); err != nil {
		return err
	}
	for i := 0; i < c.cfg.MaxRetries*handshakePollMultiplier; i++ {
		line, err := c.recvLine()
		if err != nil {
			return err
		}
		metrics.ConsoleHandshakePolls.Inc()
		if strings.HasPrefix(line, "OK AUTH") {
			return nil
		}
		if strings.HasPrefix(line, "ERR AUTH") {
			return errors.New(line)
		}
	}
	return errors.New("auth timed out")
}

func (c *Conn) attach(role, ticket string) error {
	if err := c.sendLine("ATTACH " + role + " " + ticket); err != nil {
		return err
	}
	for i := 0; i < c.cfg.MaxRetries*handshakePollMultiplier; i++ {
		line, err := c.recvLine()
		if err != nil {
			return err
		}
		metrics.ConsoleHandshakePolls.Inc()
		if strings.HasPrefix(line, "OK ATTACH") {
			return nil
		}
		if strings.HasPrefix(line, "ERR ATTACH") {
			return errors.New(line)
		}
	}
	return errors.New("attach timed out")
}

// Stream issues a streaming verb (LS or CAT) and accumulates result lines
// until the END sentinel. Inline acknowledgements for the issued verb are
// consumed: an ERR aborts the call, and a CAT OK may carry a "data="
// summary used as the sole result when the server streams no body.
//
// An ERR acknowledgement naming a different verb is accumulated as body
// content rather than aborting; server owners have been asked whether that
// is intended, and this client preserves the wire behavior as observed.
func (c *Conn) Stream(verb, path string) ([]string, error) {
	if err := c.sendLine(verb + " " + path); err != nil {
		return nil, err
	}
	var lines []string
	summary := ""
	haveSummary := false
	for {
		response, err := c.recvLine()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(response, "OK ") || strings.HasPrefix(response, "ERR ") {
			if strings.HasPrefix(response, "ERR "+verb) {
				return nil, fmt.Errorf("%s failed: %s", verb, response)
			}
			if strings.HasPrefix(response, "OK "+verb) && verb == "CAT" && !haveSummary {
				if idx := strings.Index(response, "data="); idx >= 0 {
					summary = strings.TrimSpace(response[idx+len("data="):])
					haveSummary = true
				}
			}
			continue
		}
		if response == "END" {
			if len(lines) == 0 && haveSummary {
				lines = append(lines, summary)
			}
			return lines, nil
		}
		lines = append(lines, response)
	}
}

// Echo issues the single-response ECHO verb. The payload must already be a
// single validated line; an empty payload sends the bare form.
func (c *Conn) Echo(path, payload string) error {
	line := "ECHO " + path
	if payload != "" {
		line += " " + payload
	}
	if err := c.sendLine(line); err != nil {
		return err
	}
	for {
		response, err := c.recvLine()
		if err != nil {
			return err
		}
		if strings.HasPrefix(response, "OK ECHO") {
			return nil
		}
		if strings.HasPrefix(response, "ERR ECHO") {
			return errors.New(response)
		}
	}
}
