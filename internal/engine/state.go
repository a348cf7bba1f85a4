package engine

// State tracks the linear deployment workflow. Every deployment walks the
// chain in order; any step error moves to the terminal StateFailed.
type State int

const (
	StateNotStarted State = iota
	StateBuilt
	StatePackaged
	StateInfrastructureDeployed
	StatePrimaryUpdated
	StateAuthorizerUpdated
	StateReported
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateBuilt:
		return "Built"
	case StatePackaged:
		return "Packaged"
	case StateInfrastructureDeployed:
		return "InfrastructureDeployed"
	case StatePrimaryUpdated:
		return "PrimaryUpdated"
	case StateAuthorizerUpdated:
		return "AuthorizerUpdated"
	case StateReported:
		return "Reported"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
