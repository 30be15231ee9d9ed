/*
Package config defines the client policy: every byte, count, and depth
limit the Cohesix client enforces, loaded from a YAML file over shipped
defaults.

The client treats limits as data. Backends, the console engine, and the
high-level operations all receive their budgets from a Config rather than
from package constants, so a deployment can tighten or relax quotas
without a rebuild.

Loading a policy:

	cfg, err := config.Load("/etc/cohesix/policy.yaml")
	if err != nil {
		return err
	}

A policy file only needs the fields it overrides:

	telemetry:
	  max_devices: 4
	  max_total_bytes_per_device: 262144
	run:
	  breadcrumb:
	    max_line_bytes: 512
*/
package config
