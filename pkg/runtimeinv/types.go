// Package runtimeinv implements the Container Inventory component of spec
// §4.D: shelling out to the container runtime, parsing its JSON-lines
// output, and grouping containers by project/service.
package runtimeinv

// State is one of the container lifecycle states from spec §3.
type State string

const (
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateRestarting State = "restarting"
	StatePaused     State = "paused"
	StateCreated    State = "created"
	StateUnknown    State = "unknown"
)

// ContainerRecord is the derived (never persisted) type from spec §3.
type ContainerRecord struct {
	ID              string
	ProjectLabel    string
	ServiceLabel    string
	InstanceOrdinal int
	State           State
	Status          string
	WorkingDir      string
	OneOff          bool
	Image           string
}

// ServiceGroup is the set of containers backing one compose service.
type ServiceGroup struct {
	Name       string
	Containers []*ContainerRecord
}

// ProjectGroup is one projectLabel's worth of inventory.
type ProjectGroup struct {
	Label      string
	WorkingDir string
	Services   map[string]*ServiceGroup
}

// Inventory is the full, grouped snapshot produced by one List call.
type Inventory struct {
	Projects map[string]*ProjectGroup
	// Unavailable is non-nil when the runtime could not be reached; the
	// inventory is then empty rather than an error, per §4.D.
	Unavailable error
}

// RunningCount returns how many services in the project have at least one
// running, non-one-off container (§4.F's runningCount), not the raw count
// of running containers — a service scaled to N replicas still counts once.
func (pg *ProjectGroup) RunningCount() int {
	count := 0
	for _, svc := range pg.Services {
		for _, c := range svc.Containers {
			if c.OneOff {
				continue
			}
			if c.State == StateRunning {
				count++
				break
			}
		}
	}
	return count
}
