package deploy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoConfirmer is returned when a deployment is requested without a
// confirmation gate.
var ErrNoConfirmer = errors.New("deployment requires a confirmer")

// PreflightError reports why a deployment was refused before any network
// activity. Missing lists the local relative paths absent from the preset,
// verbatim; Invalid lists items whose paths failed validation.
type PreflightError struct {
	Reason  string
	Missing []string
	Invalid []string
}

func (e *PreflightError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing in preset: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid paths: "+strings.Join(e.Invalid, "; "))
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}

// ConnectionError reports a failure to establish the deployment session
// (DNS, TCP, TLS or authentication).
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// BackupError reports a failed backup snapshot. It is advisory: the
// deployment continues to upload the item.
type BackupError struct {
	Remote string
	Err    error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup of %s: %v", e.Remote, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// TransferError reports a failed upload. It aborts the deployment.
type TransferError struct {
	Item   string
	Remote string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("uploading %s to %s: %v", e.Item, e.Remote, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
