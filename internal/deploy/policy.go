package deploy

// Step is one per-item action of a deployment.
type Step string

const (
	StepBackup Step = "backup"
	StepUpload Step = "upload"
)

// Policy decides what a failed step does to the rest of the deployment.
type Policy int

const (
	// PolicyBestEffort logs the failure as a warning and continues.
	PolicyBestEffort Policy = iota
	// PolicyFatal aborts the deployment; remaining items are not attempted.
	PolicyFatal
)

func (p Policy) String() string {
	switch p {
	case PolicyBestEffort:
		return "best-effort"
	case PolicyFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DefaultPolicies is the failure policy consulted by the engine.
var DefaultPolicies = map[Step]Policy{
	StepBackup: PolicyBestEffort,
	StepUpload: PolicyFatal,
}

// policyFor returns the policy for step, treating unknown steps as fatal.
func policyFor(policies map[Step]Policy, step Step) Policy {
	if p, ok := policies[step]; ok {
		return p
	}
	return PolicyFatal
}
