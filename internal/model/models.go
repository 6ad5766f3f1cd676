package model

import "time"

// Deployment is a persisted record of one deployment run.
type Deployment struct {
	ID         string // UUID
	Profile    string // Profile name at the time of the run
	Host       string // host:port the run connected (or tried) to
	Preset     string
	Stamp      string // Backup directory stamp
	Outcome    string // done, aborted or declined
	Error      string // Empty unless aborted
	StartedAt  time.Time
	FinishedAt time.Time
	Uploaded   int // Number of items uploaded; filled in by list queries
	Items      int // Number of items attempted; filled in by list queries
}

// DeploymentItem is the persisted result of one item of a deployment.
type DeploymentItem struct {
	DeploymentID string // Foreign key to Deployment
	Position     int    // 1-based order within the deployment
	Name         string
	LocalPath    string
	RemotePath   string
	BackupPath   string // Empty when no snapshot was written
	BackupError  string
	Uploaded     bool
	UploadError  string
}
