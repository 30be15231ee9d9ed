package ticket

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Encode renders claims as a wire ticket. Flag bits are derived from which
// optional fields are set; the MAC slot is filled with a SHA-256 digest of
// the payload, which satisfies the structural length check the client
// performs. Production tickets come from the issuing authority; Encode
// exists for fixtures and local tooling.
func Encode(claims *Claims) (string, error) {
	code, ok := codeByRole[claims.Role]
	if !ok {
		return "", errorf("unknown role %q", claims.Role)
	}

	var flags byte
	if claims.TickBudget != nil {
		flags |= FlagTicks
	}
	if claims.OpBudget != nil {
		flags |= FlagOps
	}
	if claims.TTL != nil {
		flags |= FlagTTL
	}
	if claims.Subject != "" {
		flags |= FlagSubject
	}
	if claims.HasScopes || len(claims.Scopes) > 0 {
		flags |= FlagScopes
	}
	if claims.Quotas != nil {
		flags |= FlagQuotas
	}

	payload := []byte{ClaimsVersion, code, flags}
	if claims.TickBudget != nil {
		payload = appendU64(payload, *claims.TickBudget)
	}
	if claims.OpBudget != nil {
		payload = appendU64(payload, *claims.OpBudget)
	}
	if claims.TTL != nil {
		payload = appendU64(payload, *claims.TTL)
	}
	if claims.Subject != "" {
		var err error
		if payload, err = appendString(payload, claims.Subject); err != nil {
			return "", err
		}
	}
	payload = appendU64(payload, claims.IssuedAtMS)
	var err error
	if payload, err = appendString(payload, claims.MountService); err != nil {
		return "", err
	}
	if payload, err = appendString(payload, claims.MountAt); err != nil {
		return "", err
	}
	if flags&FlagScopes != 0 {
		if len(claims.Scopes) > MaxScopeCount {
			return "", errorf("scope count %d exceeds max %d", len(claims.Scopes), MaxScopeCount)
		}
		payload = append(payload, byte(len(claims.Scopes)))
		for _, scope := range claims.Scopes {
			if payload, err = appendString(payload, scope.Resource); err != nil {
				return "", err
			}
			payload = append(payload, scope.Verb)
			payload = appendU32(payload, scope.RatePerS)
		}
	}
	if claims.Quotas != nil {
		payload = appendU64(payload, claims.Quotas.BandwidthBytes)
		payload = appendU32(payload, claims.Quotas.CursorResumes)
		payload = appendU32(payload, claims.Quotas.CursorAdvances)
	}

	mac := sha256.Sum256(payload)
	return Prefix + hex.EncodeToString(payload) + "." + hex.EncodeToString(mac[:]), nil
}

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendU64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > MaxMountFieldLen {
		return nil, errorf("string field too large")
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}
