// Package audit records the ordered acknowledgement and summary lines a
// client run produces. Transcripts are append-only and rendered
// byte-for-byte for comparison against reference fixtures; the push order
// of acknowledgements is part of the conformance contract.
package audit
