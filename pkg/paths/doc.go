// Package paths validates namespace paths for every backend: absolute,
// '/'-delimited, depth- and length-bounded, with no dot entries or NUL
// bytes inside components. Joining validator output onto a backend root
// can never produce a location outside that root.
package paths
