/*
Package client implements the coh operation surface over any namespace
backend: GPU inventory and leasing, telemetry pull and push under policy
quotas, audited command execution, and the PEFT adapter lifecycle
(export, import, activate, rollback).

Operations are transcript-oriented: each backend request records one ack
line and results record human-readable lines, so a run can be captured
and compared byte for byte against a run on another backend. Pass nil to
skip recording.

Registry state (the active adapter and its rollback target) lives on the
host filesystem next to the imported artifacts; only the activation
notify touches the namespace. All host-side writes are atomic
temp-and-rename.
*/
package client
