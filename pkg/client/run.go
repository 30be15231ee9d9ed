package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cohesix/cohesix-go/pkg/audit"
	"github.com/cohesix/cohesix-go/pkg/backend"
	"github.com/cohesix/cohesix-go/pkg/types"
)

// RunCommand executes a host command under a device's active lease,
// bracketing it with START and EXIT breadcrumbs in the device status
// file. The EXIT breadcrumb is written even when the command fails, so
// the status file always records how an execution ended.
func (c *Client) RunCommand(gpuID string, command []string, a *audit.Transcript) error {
	gpuID = trimID(gpuID)
	if gpuID == "" {
		return backend.Errorf("gpu id must not be empty")
	}
	if err := validateComponent(gpuID); err != nil {
		return err
	}
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return backend.Errorf("command must not be empty")
	}

	leasePolicy := c.cfg.Run.Lease
	breadcrumbPolicy := c.cfg.Run.Breadcrumb

	leasePath := fmt.Sprintf("/gpu/%s/lease", gpuID)
	maxBytes := leasePolicy.MaxBytes
	if maxBytes <= 0 {
		maxBytes = c.cfg.Read.MaxGPUStatusBytes
	}
	leaseBytes, err := c.backend.ReadFile(leasePath, maxBytes)
	if err != nil {
		return err
	}
	a.PushAck("OK", "CAT", "path="+leasePath)
	leaseLine, err := lastNonEmptyLine(leaseBytes)
	if err != nil {
		return err
	}
	if leaseLine == "" {
		return backend.Errorf("no active lease for gpu %s", gpuID)
	}
	var entry types.LeaseEntry
	if err := json.Unmarshal([]byte(leaseLine), &entry); err != nil {
		return backend.Errorf("invalid lease JSON")
	}
	if err := c.validateLease(entry, gpuID); err != nil {
		return err
	}

	statusPath := fmt.Sprintf("/gpu/%s/status", gpuID)
	commandLine := strings.Join(command, " ")
	startLine, err := breadcrumbLine(breadcrumbPolicy,
		types.BreadcrumbEventStart, types.BreadcrumbStatusRunning, commandLine, nil)
	if err != nil {
		return err
	}
	written, err := c.backend.WriteAppend(statusPath, startLine)
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", statusPath, written))

	c.logger.Info().Str("gpu_id", gpuID).Str("worker_id", entry.WorkerID).
		Str("command", commandLine).Msg("running command")
	cmd := exec.Command(command[0], command[1:]...)
	runErr := cmd.Run()

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// The command never started; record the failure without a code.
		exitLine, err := breadcrumbLine(breadcrumbPolicy,
			types.BreadcrumbEventExit, types.BreadcrumbStatusErr, commandLine, nil)
		if err != nil {
			return err
		}
		written, err := c.backend.WriteAppend(statusPath, exitLine)
		if err != nil {
			return err
		}
		a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", statusPath, written))
		return backend.Errorf("command failed: %v", runErr)
	}

	exitCode := 0
	if exitErr != nil {
		exitCode = exitErr.ExitCode()
	}
	status := types.BreadcrumbStatusOK
	if exitCode != 0 {
		status = types.BreadcrumbStatusErr
	}
	exitLine, err := breadcrumbLine(breadcrumbPolicy,
		types.BreadcrumbEventExit, status, commandLine, &exitCode)
	if err != nil {
		return err
	}
	written, err = c.backend.WriteAppend(statusPath, exitLine)
	if err != nil {
		return err
	}
	a.PushAck("OK", "ECHO", fmt.Sprintf("path=%s bytes=%d", statusPath, written))
	if exitCode != 0 {
		return backend.Errorf("command exited with code %d", exitCode)
	}
	return nil
}

func (c *Client) validateLease(entry types.LeaseEntry, gpuID string) error {
	policy := c.cfg.Run.Lease
	if entry.Schema != policy.Schema {
		return backend.Errorf("lease schema mismatch: expected %s got %s", policy.Schema, entry.Schema)
	}
	if entry.State != policy.ActiveState {
		return backend.Errorf("no active lease for gpu %s", gpuID)
	}
	if entry.GPUID != gpuID {
		return backend.Errorf("lease gpu_id mismatch: expected %s got %s", gpuID, entry.GPUID)
	}
	if entry.WorkerID == "" {
		return backend.Errorf("lease worker_id must not be empty")
	}
	return nil
}
