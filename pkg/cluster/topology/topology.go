package topology

import (
	"context"
	"fmt"
	"time"
)

// ProcessClass is the role a worker was recruited for
type ProcessClass string

const (
	ClassUnset       ProcessClass = "unset"
	ClassStorage     ProcessClass = "storage"
	ClassTransaction ProcessClass = "transaction"
	ClassStateless   ProcessClass = "stateless"
	// ClassTester marks test-harness processes, they are never valid kill targets
	ClassTester ProcessClass = "tester"
)

// Locality is the placement identity of a worker inside the cluster
type Locality struct {
	ProcessID  string
	ZoneID     string
	MachineID  string
	DataHallID string
	DcID       string
	// Address is the worker's control endpoint, set by live rosters only
	Address string
	// InstanceID is the backing cloud instance, set by live rosters only
	InstanceID string
}

func (l Locality) String() string {
	return fmt.Sprintf("dc=%s datahall=%s machine=%s zone=%s process=%s", l.DcID, l.DataHallID, l.MachineID, l.ZoneID, l.ProcessID)
}

// Worker is one roster entry, a kill candidate. In simulation one worker
// stands for a whole zone, against a live deployment one worker is a single
// process.
type Worker struct {
	Locality Locality
	Class    ProcessClass
}

// KillAxis is the failure domain a kill is scoped to
type KillAxis string

const (
	AxisDatacenter KillAxis = "datacenter"
	AxisMachine    KillAxis = "machine"
	AxisDataHall   KillAxis = "datahall"
	AxisProcess    KillAxis = "process"
	// AxisZone is the default, one replication unit at a time instead of a
	// whole locality group
	AxisZone KillAxis = "zone"
)

// ChooseAxis folds the four axis flags into the active axis. When several
// flags are set the first one in this order wins, callers rely on the
// ordering staying datacenter, machine, datahall, process.
func ChooseAxis(killDc, killMachine, killDatahall, killProcess bool) KillAxis {
	switch {
	case killDc:
		return AxisDatacenter
	case killMachine:
		return AxisMachine
	case killDatahall:
		return AxisDataHall
	case killProcess:
		return AxisProcess
	}
	return AxisZone
}

// Grouped reports whether the axis kills every unit sharing the matched
// locality value rather than a single unit per round
func (a KillAxis) Grouped() bool {
	return a != AxisZone
}

// Get returns the locality field the given axis scopes over
func (l Locality) Get(axis KillAxis) string {
	switch axis {
	case AxisDatacenter:
		return l.DcID
	case AxisMachine:
		return l.MachineID
	case AxisDataHall:
		return l.DataHallID
	case AxisProcess:
		return l.ProcessID
	}
	return l.ZoneID
}

// KillType is how hard a selected unit goes down
type KillType string

const (
	KillInstantly   KillType = "KillInstantly"
	InjectFaults    KillType = "InjectFaults"
	RebootAndDelete KillType = "RebootAndDelete"
	Reboot          KillType = "Reboot"
)

// Roster lists the currently live workers of the cluster under attrition
type Roster interface {
	Workers(ctx context.Context) ([]Worker, error)
}

// KillMechanism carries out kill decisions against the cluster. The attrition
// loop decides who, when and how hard, implementations decide what a kill
// physically means.
type KillMechanism interface {
	// Name tags log lines and spans
	Name() string
	// Simulated reports whether kills land on an in-process cluster model.
	// Fault injection and the health-zone chaos hooks stay disabled against
	// real deployments.
	Simulated() bool
	// KillDataCenter takes down every process placed in the datacenter
	KillDataCenter(ctx context.Context, dcID string, killType KillType) error
	// KillZone takes down every process sharing the zone
	KillZone(ctx context.Context, zoneID string, killType KillType) error
	// KillUnit takes down a single roster unit
	KillUnit(ctx context.Context, target Worker, killType KillType) error
}

// ProcessRebooter is the optional direct process-restart primitive. The
// simulated mechanism exposes it so reboot rounds can alternate between a
// zone-wide reboot and a plain process restart.
type ProcessRebooter interface {
	RebootProcess(ctx context.Context, zoneID string, alsoDeleteData bool) error
}

// SuspendTuner is implemented by mechanisms that keep plainly rebooted workers
// down for a configurable duration. The attrition loop hands over the resolved
// tunable before the first kill.
type SuspendTuner interface {
	SetSuspendDuration(duration time.Duration)
}
