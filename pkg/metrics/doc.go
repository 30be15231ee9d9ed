// Package metrics exposes Prometheus collectors for backend operations,
// byte throughput, and console protocol health. Collectors register on the
// default registry at init; Handler serves them for scrape endpoints run
// by embedding tools.
package metrics
