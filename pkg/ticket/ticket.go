package ticket

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Prefix is the literal wire prefix every ticket carries.
const Prefix = "cohesix-ticket-"

const (
	// ClaimsVersion is the supported payload schema version.
	ClaimsVersion = 1
	// MaxTicketLen is the default wire-length bound for NormalizeTicket.
	MaxTicketLen = 224
	// MaxMountFieldLen bounds every length-prefixed string field.
	MaxMountFieldLen = 255
	// MaxScopeCount bounds the optional scope list.
	MaxScopeCount = 16
	// MACLen is the exact hex-decoded MAC length.
	MACLen = 32
)

// Flag bits gating optional payload fields, decoded in declared order.
const (
	FlagTicks   = 1 << 0
	FlagOps     = 1 << 1
	FlagTTL     = 1 << 2
	FlagSubject = 1 << 3
	FlagScopes  = 1 << 4
	FlagQuotas  = 1 << 5
)

// Role names in role-code order.
const (
	RoleQueen           = "queen"
	RoleWorkerHeartbeat = "worker-heartbeat"
	RoleWorkerGPU       = "worker-gpu"
	RoleWorkerBus       = "worker-bus"
	RoleWorkerLora      = "worker-lora"
)

var roleByCode = map[byte]string{
	0: RoleQueen,
	1: RoleWorkerHeartbeat,
	2: RoleWorkerGPU,
	3: RoleWorkerBus,
	4: RoleWorkerLora,
}

var codeByRole = map[string]byte{
	RoleQueen:           0,
	RoleWorkerHeartbeat: 1,
	RoleWorkerGPU:       2,
	RoleWorkerBus:       3,
	RoleWorkerLora:      4,
}

var roleAlias = map[string]string{
	"queen":            RoleQueen,
	"worker":           RoleWorkerHeartbeat,
	"worker-heartbeat": RoleWorkerHeartbeat,
	"worker-gpu":       RoleWorkerGPU,
	"worker-bus":       RoleWorkerBus,
	"worker-lora":      RoleWorkerLora,
}

// TicketError reports a ticket that failed decoding or validation.
type TicketError struct {
	Reason string
}

func (e *TicketError) Error() string {
	return "ticket: " + e.Reason
}

func errorf(format string, args ...any) *TicketError {
	return &TicketError{Reason: fmt.Sprintf(format, args...)}
}

// Scope grants a verb on a resource at a bounded rate.
type Scope struct {
	Resource string
	Verb     byte
	RatePerS uint32
}

// Quotas carries the optional quota block.
type Quotas struct {
	BandwidthBytes uint64
	CursorResumes  uint32
	CursorAdvances uint32
}

// Claims is the decoded ticket payload. Optional fields are pointers; a
// nil pointer means the corresponding flag bit was clear on the wire.
type Claims struct {
	Role         string
	Subject      string
	TickBudget   *uint64
	OpBudget     *uint64
	TTL          *uint64
	IssuedAtMS   uint64
	MountService string
	MountAt      string
	Scopes       []Scope
	HasScopes    bool
	Quotas       *Quotas
}

// payloadCursor tracks a decode position and fails on any read past the
// buffer end.
type payloadCursor struct {
	data []byte
	pos  int
}

func (c *payloadCursor) readExact(size int) ([]byte, error) {
	end := c.pos + size
	if end > len(c.data) {
		return nil, errorf("payload truncated")
	}
	chunk := c.data[c.pos:end]
	c.pos = end
	return chunk, nil
}

func (c *payloadCursor) readU8() (byte, error) {
	chunk, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return chunk[0], nil
}

func (c *payloadCursor) readU32() (uint32, error) {
	chunk, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(chunk), nil
}

func (c *payloadCursor) readU64() (uint64, error) {
	chunk, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(chunk), nil
}

func (c *payloadCursor) readString() (string, error) {
	lenBytes, err := c.readExact(2)
	if err != nil {
		return "", err
	}
	length := int(binary.LittleEndian.Uint16(lenBytes))
	if length > MaxMountFieldLen {
		return "", errorf("string field too large")
	}
	raw, err := c.readExact(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errorf("string field not UTF-8")
	}
	return string(raw), nil
}

func (c *payloadCursor) ensureEmpty() error {
	if c.pos != len(c.data) {
		return errorf("payload has trailing data")
	}
	return nil
}

// DecodeClaims decodes and validates a wire ticket. The MAC is checked for
// structural well-formedness only (exact length after hex decode); its
// cryptographic value is the issuer's concern, not the client's.
func DecodeClaims(token string) (*Claims, error) {
	if !strings.HasPrefix(token, Prefix) {
		return nil, errorf("missing %s prefix", strings.TrimSuffix(Prefix, "-"))
	}
	body := token[len(Prefix):]
	sep := strings.LastIndex(body, ".")
	if sep < 0 {
		return nil, errorf("missing mac separator")
	}
	payload, err := hex.DecodeString(body[:sep])
	if err != nil {
		return nil, errorf("hex decode failed")
	}
	mac, err := hex.DecodeString(body[sep+1:])
	if err != nil {
		return nil, errorf("hex decode failed")
	}
	if len(mac) != MACLen {
		return nil, errorf("mac length invalid")
	}

	cursor := &payloadCursor{data: payload}
	version, err := cursor.readU8()
	if err != nil {
		return nil, err
	}
	if version != ClaimsVersion {
		return nil, errorf("version %d unsupported", version)
	}
	roleCode, err := cursor.readU8()
	if err != nil {
		return nil, err
	}
	role, ok := roleByCode[roleCode]
	if !ok {
		return nil, errorf("role code %d unsupported", roleCode)
	}
	flags, err := cursor.readU8()
	if err != nil {
		return nil, err
	}

	claims := &Claims{Role: role}
	if flags&FlagTicks != 0 {
		v, err := cursor.readU64()
		if err != nil {
			return nil, err
		}
		claims.TickBudget = &v
	}
	if flags&FlagOps != 0 {
		v, err := cursor.readU64()
		if err != nil {
			return nil, err
		}
		claims.OpBudget = &v
	}
	if flags&FlagTTL != 0 {
		v, err := cursor.readU64()
		if err != nil {
			return nil, err
		}
		claims.TTL = &v
	}
	if flags&FlagSubject != 0 {
		subject, err := cursor.readString()
		if err != nil {
			return nil, err
		}
		claims.Subject = subject
	}
	if claims.IssuedAtMS, err = cursor.readU64(); err != nil {
		return nil, err
	}
	if claims.MountService, err = cursor.readString(); err != nil {
		return nil, err
	}
	if claims.MountAt, err = cursor.readString(); err != nil {
		return nil, err
	}
	if flags&FlagScopes != 0 {
		claims.HasScopes = true
		if claims.Scopes, err = decodeScopes(cursor); err != nil {
			return nil, err
		}
	}
	if flags&FlagQuotas != 0 {
		if claims.Quotas, err = decodeQuotas(cursor); err != nil {
			return nil, err
		}
	}
	if err := cursor.ensureEmpty(); err != nil {
		return nil, err
	}
	return claims, nil
}

func decodeScopes(cursor *payloadCursor) ([]Scope, error) {
	count, err := cursor.readU8()
	if err != nil {
		return nil, err
	}
	if int(count) > MaxScopeCount {
		return nil, errorf("scope count %d exceeds max %d", count, MaxScopeCount)
	}
	scopes := make([]Scope, 0, count)
	for i := 0; i < int(count); i++ {
		resource, err := cursor.readString()
		if err != nil {
			return nil, err
		}
		verb, err := cursor.readU8()
		if err != nil {
			return nil, err
		}
		rate, err := cursor.readU32()
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, Scope{Resource: resource, Verb: verb, RatePerS: rate})
	}
	return scopes, nil
}

func decodeQuotas(cursor *payloadCursor) (*Quotas, error) {
	bandwidth, err := cursor.readU64()
	if err != nil {
		return nil, err
	}
	resumes, err := cursor.readU32()
	if err != nil {
		return nil, err
	}
	advances, err := cursor.readU32()
	if err != nil {
		return nil, err
	}
	return &Quotas{BandwidthBytes: bandwidth, CursorResumes: resumes, CursorAdvances: advances}, nil
}

// NormalizeRole maps a case-insensitive role alias to its canonical name.
func NormalizeRole(role string) (string, error) {
	canonical, ok := roleAlias[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return "", errorf("unknown role %q", role)
	}
	return canonical, nil
}

// NormalizeTicket validates the ticket material presented for a role and
// returns the trimmed wire text, or "" when no ticket is presented.
//
// The queen role may attach without a ticket; if one is present and
// queenValidate is set it is still fully decoded so malformed material is
// rejected early. Every other role requires a ticket whose decoded role
// matches and whose subject is non-empty. maxLen bounds the wire text; a
// zero falls back to MaxTicketLen.
func NormalizeTicket(role, ticket string, maxLen int, queenValidate bool) (string, error) {
	canonical, err := NormalizeRole(role)
	if err != nil {
		return "", err
	}
	if maxLen <= 0 {
		maxLen = MaxTicketLen
	}
	trimmed := strings.TrimSpace(ticket)
	if trimmed != "" && len(trimmed) > maxLen {
		return "", errorf("payload exceeds %d bytes", maxLen)
	}

	if canonical == RoleQueen {
		if trimmed == "" {
			return "", nil
		}
		if queenValidate {
			if _, err := DecodeClaims(trimmed); err != nil {
				return "", err
			}
		}
		return trimmed, nil
	}

	if trimmed == "" {
		return "", errorf("payload is required for role %s", canonical)
	}
	claims, err := DecodeClaims(trimmed)
	if err != nil {
		return "", err
	}
	if claims.Role != canonical {
		return "", errorf("role %s does not match requested role %s", claims.Role, canonical)
	}
	if claims.Subject == "" {
		return "", errorf("missing required subject identity")
	}
	return trimmed, nil
}
