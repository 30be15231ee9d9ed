/*
Package backend provides the namespace transports client operations run
against. Three implementations share one interface:

  - Filesystem serves a mounted namespace from a host directory, with
    every path validated and resolved strictly under the mount root.
  - TCP serves a remote namespace over the framed console protocol,
    normalizing the caller's role and capability ticket before attach.
  - Mock wraps Filesystem around a seeded fixture tree and emulates the
    queen's control surfaces (spawn/kill, telemetry segment rolling) so
    the full operation surface can run without a node.

All three enforce the same read bounds and return sorted listings, so a
transcript recorded against one backend replays against another.
*/
package backend
