package simulation

import (
	"context"

	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
)

// Mechanism adapts the simulated cluster to the kill primitives the attrition
// loop drives
type Mechanism struct {
	cluster *Cluster
}

// NewMechanism wraps the cluster. The same cluster also serves as the roster.
func NewMechanism(cluster *Cluster) *Mechanism {
	return &Mechanism{cluster: cluster}
}

// Name implements topology.KillMechanism
func (m *Mechanism) Name() string {
	return "simulation"
}

// Simulated implements topology.KillMechanism
func (m *Mechanism) Simulated() bool {
	return true
}

// KillDataCenter implements topology.KillMechanism
func (m *Mechanism) KillDataCenter(ctx context.Context, dcID string, killType topology.KillType) error {
	return m.cluster.KillDataCenter(dcID, killType)
}

// KillZone implements topology.KillMechanism
func (m *Mechanism) KillZone(ctx context.Context, zoneID string, killType topology.KillType) error {
	return m.cluster.KillZone(zoneID, killType)
}

// KillUnit kills the unit's whole zone, in simulation one roster unit stands
// for its zone
func (m *Mechanism) KillUnit(ctx context.Context, target topology.Worker, killType topology.KillType) error {
	return m.cluster.KillZone(target.Locality.ZoneID, killType)
}

// RebootProcess implements topology.ProcessRebooter
func (m *Mechanism) RebootProcess(ctx context.Context, zoneID string, alsoDeleteData bool) error {
	return m.cluster.RebootProcess(zoneID, alsoDeleteData)
}
