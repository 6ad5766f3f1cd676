package deploy

import "time"

// ResolvedItem is one enabled mapping resolved against a preset and a
// profile root. It is computed on demand and never persisted.
type ResolvedItem struct {
	Name               string
	LocalRelativePath  string // slash-separated, relative to the preset directory
	LocalAbsolutePath  string
	RemoteAbsolutePath string
	LocalExists        bool
	Backup             bool

	// Invalid is set when the local or remote path is empty or escapes its
	// containing directory. The filesystem is never consulted for an
	// invalid item.
	Invalid error
}

// State is a step of the deployment state machine.
type State string

const (
	StateIdle      State = "idle"
	StatePreflight State = "preflight"
	StateConnected State = "connected"
	StateItem      State = "item"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// Outcome is how a deployment ended.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeAborted  Outcome = "aborted"
	OutcomeDeclined Outcome = "declined"
)

// ItemResult records what happened to one ResolvedItem.
type ItemResult struct {
	Item       ResolvedItem
	Attempted  bool
	BackupPath string
	BackupErr  error
	Uploaded   bool
	UploadErr  error
}

// Deployment is one execution of the engine against a (profile, preset) pair.
type Deployment struct {
	ID         string
	Profile    string
	Preset     string
	Stamp      string // fixed once connected, shared by every backup of the run
	StartedAt  time.Time
	FinishedAt time.Time
	State      State
	Outcome    Outcome
	Total      int // items planned by preflight
	Items      []ItemResult
	Err        error
}

// Uploaded returns the number of items that were uploaded.
func (d *Deployment) Uploaded() int {
	n := 0
	for _, r := range d.Items {
		if r.Uploaded {
			n++
		}
	}
	return n
}

// Event is a progress notification emitted while a deployment runs.
type Event struct {
	State   State
	Step    Step // set for item events
	Index   int  // 1-based item index, 0 when not item-scoped
	Total   int
	Item    string
	Message string
	Err     error
}
