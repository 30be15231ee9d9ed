package client

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/backend"
)

// PullStats summarizes a telemetry pull.
type PullStats struct {
	Devices  int
	Segments int
	Bytes    int
}

// PushResult reports where a pushed payload landed.
type PushResult struct {
	DeviceID  string
	SegmentID string
	Records   int
	Bytes     int
}

// TelemetryPull mirrors every telemetry segment under outDir, enforcing
// the device, segment, and byte quotas from policy. Already-mirrored
// segments are skipped, so interrupted pulls resume cleanly.
func (c *Client) TelemetryPull(outDir string, a *audit.Transcript) (PullStats, error) {
	policy := c.cfg.Telemetry
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return PullStats{}, fmt.Errorf("failed to create output dir %s: %w", outDir, err)
	}

	deviceEntries, err := c.backend.List(policy.Root)
	if err != nil {
		return PullStats{}, err
	}
	a.PushAck("OK", "LS", "path="+policy.Root)
	if policy.MaxDevices > 0 && len(deviceEntries) > policy.MaxDevices {
		return PullStats{}, backend.Errorf("telemetry devices %d exceeds max_devices %d",
			len(deviceEntries), policy.MaxDevices)
	}
	sort.Strings(deviceEntries)

	var stats PullStats
	for _, deviceID := range deviceEntries {
		if err := validateComponent(deviceID); err != nil {
			return PullStats{}, err
		}
		segRoot := fmt.Sprintf("%s/%s/seg", policy.Root, deviceID)
		segEntries, err := c.backend.List(segRoot)
		if err != nil {
			return PullStats{}, err
		}
		a.PushAck("OK", "LS", "path="+segRoot)
		if policy.MaxSegmentsPerDevice > 0 && len(segEntries) > policy.MaxSegmentsPerDevice {
			return PullStats{}, backend.Errorf(
				"telemetry segments %d exceeds max_segments_per_device %d for device %s",
				len(segEntries), policy.MaxSegmentsPerDevice, deviceID)
		}
		sort.Strings(segEntries)

		deviceBytes := 0
		for _, segID := range segEntries {
			if err := validateComponent(segID); err != nil {
				return PullStats{}, err
			}
			segPath := segRoot + "/" + segID
			maxBytes := policy.MaxBytesPerSegment
			if maxBytes <= 0 {
				maxBytes = c.cfg.Read.MaxDirListBytes
			}
			payload, err := c.backend.ReadFile(segPath, maxBytes)
			if err != nil {
				return PullStats{}, err
			}
			a.PushAck("OK", "CAT", "path="+segPath)
			deviceBytes += len(payload)
			if policy.MaxTotalBytesPerDevice > 0 && deviceBytes > policy.MaxTotalBytesPerDevice {
				return PullStats{}, backend.Errorf(
					"telemetry bytes %d exceeds max_total_bytes_per_device %d for device %s",
					deviceBytes, policy.MaxTotalBytesPerDevice, deviceID)
			}
			relative := path.Join(deviceID, "seg", segID)
			if err := writeSegment(filepath.Join(outDir, filepath.FromSlash(relative)), payload); err != nil {
				return PullStats{}, err
			}
			a.PushLine(fmt.Sprintf("telemetry device=%s segment=%s bytes=%d saved=%s",
				deviceID, segID, len(payload), relative))
			stats.Segments++
		}
		stats.Devices++
		stats.Bytes += deviceBytes
	}
	if stats.Devices == 0 {
		a.PushLine("telemetry: none")
	}
	c.logger.Info().Int("devices", stats.Devices).Int("segments", stats.Segments).
		Int("bytes", stats.Bytes).Msg("telemetry pulled")
	return stats, nil
}

// TelemetryPush rolls a fresh segment for a device and appends the payload
// as chunked envelope records. Ingest must be enabled in policy: all three
// per-device quotas positive.
func (c *Client) TelemetryPush(deviceID, payload, mime string, a *audit.Transcript) (*PushResult, error) {
	ingest := c.cfg.Ingest
	if ingest.MaxSegmentsPerDevice <= 0 || ingest.MaxBytesPerSegment <= 0 || ingest.MaxTotalBytesPerDevice <= 0 {
		return nil, backend.Errorf("telemetry ingest is disabled in policy")
	}
	deviceID = trimID(deviceID)
	if deviceID == "" {
		return nil, backend.Errorf("telemetry device id must not be empty")
	}
	if err := validateComponent(deviceID); err != nil {
		return nil, err
	}

	segRoot := fmt.Sprintf("/queen/telemetry/%s/seg", deviceID)
	existing, err := c.backend.List(segRoot)
	if err != nil {
		// A device without prior segments has no seg directory yet.
		existing = nil
	}
	if len(existing) >= ingest.MaxSegmentsPerDevice {
		return nil, backend.Errorf("telemetry segments %d exceeds max_segments_per_device %d",
			len(existing), ingest.MaxSegmentsPerDevice)
	}

	ctlPayload, err := buildTelemetryCtl(mime)
	if err != nil {
		return nil, err
	}
	ctlPath := fmt.Sprintf("/queen/telemetry/%s/ctl", deviceID)
	written, err := c.backend.WriteAppend(ctlPath, []byte(ctlPayload))
	if err != nil {
		return nil, err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", ctlPath, written))

	latestPath := fmt.Sprintf("/queen/telemetry/%s/latest", deviceID)
	latest, err := c.backend.ReadFile(latestPath, c.cfg.Read.MaxDirListBytes)
	if err != nil {
		return nil, err
	}
	segID, err := lastNonEmptyLine(latest)
	if err != nil {
		return nil, err
	}
	if segID == "" {
		return nil, backend.Errorf("telemetry push could not resolve latest segment id")
	}

	records, err := buildTelemetryRecords(payload, mime, ingest.Schema, ingest.MaxRecordBytes)
	if err != nil {
		return nil, err
	}
	totalBytes := 0
	for _, record := range records {
		totalBytes += len(record)
	}
	if totalBytes > ingest.MaxBytesPerSegment {
		return nil, backend.Errorf("telemetry payload exceeds max_bytes_per_segment %d",
			ingest.MaxBytesPerSegment)
	}
	currentBytes := 0
	for _, existingID := range existing {
		payloadBytes, err := c.backend.ReadFile(segRoot+"/"+existingID, ingest.MaxBytesPerSegment)
		if err != nil {
			return nil, err
		}
		currentBytes += len(payloadBytes)
	}
	if currentBytes+totalBytes > ingest.MaxTotalBytesPerDevice {
		return nil, backend.Errorf("telemetry bytes %d exceeds max_total_bytes_per_device %d",
			currentBytes+totalBytes, ingest.MaxTotalBytesPerDevice)
	}

	segPath := segRoot + "/" + segID
	echoBacked := isEchoBacked(c.backend)
	for _, record := range records {
		if echoBacked && len(record) > c.cfg.Console.MaxEchoLen {
			return nil, backend.Errorf("telemetry record exceeds console echo max %d",
				c.cfg.Console.MaxEchoLen)
		}
		written, err := c.backend.WriteAppend(segPath, record)
		if err != nil {
			return nil, err
		}
		a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", segPath, written))
	}
	a.PushLine(fmt.Sprintf("telemetry push device=%s seg_id=%s records=%d bytes=%d",
		deviceID, segID, len(records), totalBytes))
	c.logger.Info().Str("device_id", deviceID).Str("seg_id", segID).
		Int("records", len(records)).Msg("telemetry pushed")
	return &PushResult{DeviceID: deviceID, SegmentID: segID, Records: len(records), Bytes: totalBytes}, nil
}

// isEchoBacked reports whether writes travel as single console ECHO lines
// and must therefore honor the echo budget per record.
func isEchoBacked(b backend.Backend) bool {
	_, ok := b.(*backend.TCP)
	return ok
}
