package remote

import (
	"context"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/log"
)

// Mechanism delivers kill decisions to a live cluster. There is no process
// model to poke here, every kill flavor turns into a reboot request against
// the matched workers' admin endpoints.
type Mechanism struct {
	client          *Client
	suspendDuration time.Duration
}

// NewMechanism wraps the control-plane client into a kill mechanism. A plain
// reboot keeps the worker down for suspendDuration, every harder kill keeps
// it down until it is replaced.
func NewMechanism(client *Client, suspendDuration time.Duration) *Mechanism {
	return &Mechanism{client: client, suspendDuration: suspendDuration}
}

func (m *Mechanism) Name() string {
	return "remote"
}

// Simulated reports false, fault injection never runs against live clusters
func (m *Mechanism) Simulated() bool {
	return false
}

// SetSuspendDuration implements topology.SuspendTuner
func (m *Mechanism) SetSuspendDuration(duration time.Duration) {
	m.suspendDuration = duration
}

func (m *Mechanism) KillDataCenter(ctx context.Context, dcID string, killType topology.KillType) error {
	return m.killMatching(ctx, topology.AxisDatacenter, dcID, killType)
}

func (m *Mechanism) KillZone(ctx context.Context, zoneID string, killType topology.KillType) error {
	return m.killMatching(ctx, topology.AxisZone, zoneID, killType)
}

func (m *Mechanism) KillUnit(ctx context.Context, target topology.Worker, killType topology.KillType) error {
	request := m.requestFor(killType)
	log.InfoWithValues("[Chaos]: Sending reboot request", map[string]interface{}{
		"Address":         target.Locality.Address,
		"Zone":            target.Locality.ZoneID,
		"KillType":        string(killType),
		"WaitForDuration": request.WaitForDuration,
	})
	if err := m.client.RequestReboot(ctx, target.Locality.Address, request); err != nil {
		return stacktrace.Propagate(err, "could not reboot worker %v", target.Locality.ProcessID)
	}
	return nil
}

// killMatching re-lists the roster and sends a reboot request to every worker
// whose locality matches the scope. Workers that flaked out of the roster
// since the caller selected the scope are simply no longer targets.
func (m *Mechanism) killMatching(ctx context.Context, axis topology.KillAxis, value string, killType topology.KillType) error {
	workers, err := m.client.Workers(ctx)
	if err != nil {
		return stacktrace.Propagate(err, "could not list workers for the %v kill", axis)
	}
	matched := 0
	for _, worker := range workers {
		if worker.Locality.Get(axis) != value {
			continue
		}
		matched++
		if err := m.KillUnit(ctx, worker, killType); err != nil {
			return err
		}
	}
	if matched == 0 {
		log.Warnf("no live workers matched %v %v, nothing to kill", axis, value)
	}
	return nil
}

func (m *Mechanism) requestFor(killType topology.KillType) RebootRequest {
	request := RebootRequest{WaitForDuration: RebootWaitForever}
	if killType == topology.Reboot {
		request.WaitForDuration = uint32(m.suspendDuration.Seconds())
	}
	if killType == topology.RebootAndDelete {
		request.DeleteData = true
	}
	return request
}
