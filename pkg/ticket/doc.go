/*
Package ticket decodes and validates Cohesix capability tickets.

A ticket travels as opaque wire text:

	cohesix-ticket-<hex payload>.<hex mac>

The payload is a versioned binary record: a fixed prefix (version, role
code, flag byte) followed by optional fields gated by flag bits in a
declared order, then the always-present issued-at timestamp and mount
descriptors, then the optional scope list and quota block. Decoding walks
the payload with a cursor that fails on any read past the end and requires
the cursor to land exactly on the final byte; slack or shortfall is a
decode failure, never a partial result.

The MAC is hex-decoded and checked for its exact 32-byte length only. The
client does not re-verify its cryptographic value; trust is delegated to
the issuing authority.

Role handling follows the attach contract: the queen role may present no
ticket at all, while every worker role requires a ticket whose decoded
role matches the requested role and which carries a subject identity.
*/
package ticket
