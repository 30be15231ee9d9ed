/*
Package console implements the framed TCP console protocol used to address
a remote administrative namespace without a mounted filesystem.

Wire format: every message is a little-endian 32-bit length prefix
counting the whole frame (prefix included) followed by the payload,
ASCII outbound and UTF-8 inbound. A declared length below 4 or above the
configured maximum is a protocol error. Inbound payloads are stripped of
trailing CR/LF.

Connection lifecycle:

	conn, err := console.Dial(addr, authToken, role, ticket, cfg)
	...
	names, err := conn.Stream("LS", "/gpu")
	body, err := conn.Stream("CAT", "/gpu/GPU-0/info")
	err = conn.Echo("/queen/ctl", payload)
	conn.Close()

Dial runs the AUTH then ATTACH handshakes before returning; each polls a
bounded number of response lines so informational lines from the server
ahead of the authoritative acknowledgement do not fail the handshake.
Nothing else is ever retried: any protocol violation aborts the current
call and leaves the connection unusable.
*/
package console
