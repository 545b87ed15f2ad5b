package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/log"
)

// Layout shapes the simulated deployment
type Layout struct {
	Datacenters         int
	DataHallsPerDc      int
	MachinesPerDataHall int
	ProcessesPerMachine int
	// Testers are extra harness processes, present in the registry but never
	// valid kill targets
	Testers int
}

// DefaultLayout mirrors a small two-datacenter deployment
func DefaultLayout() Layout {
	return Layout{
		Datacenters:         2,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 5,
		ProcessesPerMachine: 1,
		Testers:             1,
	}
}

// Process is one simulated cluster member
type Process struct {
	Locality topology.Locality
	Class    topology.ProcessClass
	Failed   bool
	Reboots  int
	DataLoss bool
	Faulted  bool
}

// KillEvent records one applied kill primitive, in application order
type KillEvent struct {
	Scope      string
	Target     string
	Type       topology.KillType
	DeleteData bool
}

// Cluster is a single-process stand-in for a running deployment. It keeps the
// process registry, applies kill primitives and hands out the live roster.
type Cluster struct {
	mu        sync.Mutex
	processes []*Process
	events    []KillEvent
}

var workerClasses = []topology.ProcessClass{
	topology.ClassStorage,
	topology.ClassTransaction,
	topology.ClassStateless,
}

// NewCluster builds the registry for the given layout. Localities are derived
// from positions, so the same layout always yields the same roster.
func NewCluster(layout Layout) *Cluster {
	c := &Cluster{}
	n := 0
	for dc := 0; dc < layout.Datacenters; dc++ {
		dcID := fmt.Sprintf("dc%d", dc)
		for hall := 0; hall < layout.DataHallsPerDc; hall++ {
			hallID := fmt.Sprintf("%s-hall%d", dcID, hall)
			for machine := 0; machine < layout.MachinesPerDataHall; machine++ {
				machineID := fmt.Sprintf("%s-m%d", hallID, machine)
				for p := 0; p < layout.ProcessesPerMachine; p++ {
					c.processes = append(c.processes, &Process{
						Locality: topology.Locality{
							ProcessID:  fmt.Sprintf("%s-p%d", machineID, p),
							ZoneID:     machineID,
							MachineID:  machineID,
							DataHallID: hallID,
							DcID:       dcID,
						},
						Class: workerClasses[n%len(workerClasses)],
					})
					n++
				}
			}
		}
	}
	for i := 0; i < layout.Testers; i++ {
		c.processes = append(c.processes, &Process{
			Locality: topology.Locality{
				ProcessID: fmt.Sprintf("tester-p%d", i),
				ZoneID:    fmt.Sprintf("tester-%d", i),
				MachineID: fmt.Sprintf("tester-%d", i),
			},
			Class: topology.ClassTester,
		})
	}
	return c
}

// Workers returns the live, non-harness members of the registry
func (c *Cluster) Workers(ctx context.Context) ([]topology.Worker, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var workers []topology.Worker
	for _, p := range c.processes {
		if p.Failed || p.Class == topology.ClassTester {
			continue
		}
		workers = append(workers, topology.Worker{Locality: p.Locality, Class: p.Class})
	}
	return workers, nil
}

// KillDataCenter applies the kill to every process placed in the datacenter
func (c *Cluster) KillDataCenter(dcID string, killType topology.KillType) error {
	if dcID == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Reason: "empty datacenter id"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hit := 0
	for _, p := range c.processes {
		if p.Locality.DcID == dcID {
			applyKill(p, killType)
			hit++
		}
	}
	c.events = append(c.events, KillEvent{Scope: "datacenter", Target: dcID, Type: killType})
	log.Debugf("killed datacenter %v with %v, %v processes hit", dcID, killType, hit)
	return nil
}

// KillZone applies the kill to every process sharing the zone
func (c *Cluster) KillZone(zoneID string, killType topology.KillType) error {
	if zoneID == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Reason: "empty zone id"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hit := 0
	for _, p := range c.processes {
		if p.Locality.ZoneID == zoneID {
			applyKill(p, killType)
			hit++
		}
	}
	c.events = append(c.events, KillEvent{Scope: "zone", Target: zoneID, Type: killType})
	log.Debugf("killed zone %v with %v, %v processes hit", zoneID, killType, hit)
	return nil
}

// RebootProcess restarts the first live process of the zone, optionally
// dropping its data files
func (c *Cluster) RebootProcess(zoneID string, alsoDeleteData bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.processes {
		if p.Locality.ZoneID != zoneID || p.Failed {
			continue
		}
		p.Reboots++
		if alsoDeleteData {
			p.DataLoss = true
		}
		c.events = append(c.events, KillEvent{Scope: "process", Target: p.Locality.ProcessID, Type: topology.Reboot, DeleteData: alsoDeleteData})
		log.Debugf("rebooted process %v, delete data %v", p.Locality.ProcessID, alsoDeleteData)
		return nil
	}
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{zoneID: %v}", zoneID), Reason: "no live process in zone"}
}

func applyKill(p *Process, killType topology.KillType) {
	switch killType {
	case topology.Reboot:
		p.Reboots++
	case topology.RebootAndDelete:
		p.Reboots++
		p.DataLoss = true
	case topology.InjectFaults:
		p.Faulted = true
		p.Failed = true
	default:
		p.Failed = true
	}
}

// Events returns the applied kills in order
func (c *Cluster) Events() []KillEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]KillEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Processes returns a point-in-time copy of the whole registry, harness
// processes included
func (c *Cluster) Processes() []Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Process, len(c.processes))
	for i, p := range c.processes {
		out[i] = *p
	}
	return out
}
