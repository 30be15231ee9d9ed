// Package types defines the JSON line records shared between backends and
// client operations: GPU descriptors, lease entries, execution breadcrumbs,
// and telemetry envelopes. Struct field order matches the wire record so
// encoded output is byte-stable across tools.
package types
