package lib

import (
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/utils/random"
)

// TargetGroup is one dispatchable kill decision: the axis, the locality value
// that was matched and every pool unit sharing it
type TargetGroup struct {
	Axis    topology.KillAxis
	Value   string
	Workers []topology.Worker
}

// buildPool turns a roster snapshot into the candidate pool. Against the
// simulated cluster one unit stands for a whole zone, so extra processes of an
// already seen zone are dropped; the pool is then shuffled so the tail target
// varies between runs.
func buildPool(workers []topology.Worker, simulated bool, rng *random.Source) []topology.Worker {
	pool := workers
	if simulated {
		seen := map[string]bool{}
		pool = make([]topology.Worker, 0, len(workers))
		for _, worker := range workers {
			if seen[worker.Locality.ZoneID] {
				continue
			}
			seen[worker.Locality.ZoneID] = true
			pool = append(pool, worker)
		}
		rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
	}
	return pool
}

// selectTargets resolves the round's target group from the pool. The anchor
// value is the configured target id when one is set, otherwise the axis value
// of the pool's tail unit. An explicit target id that matches nothing yields
// an empty group, the round becomes a no-op.
func selectTargets(pool []topology.Worker, axis topology.KillAxis, targetID string) TargetGroup {
	group := TargetGroup{Axis: axis}
	if len(pool) == 0 {
		return group
	}

	group.Value = targetID
	if group.Value == "" {
		group.Value = pool[len(pool)-1].Locality.Get(axis)
	}
	for _, worker := range pool {
		if worker.Locality.Get(axis) == group.Value {
			group.Workers = append(group.Workers, worker)
		}
	}
	if len(group.Workers) == 0 {
		log.Warnf("no pool unit matches %v %v, nothing to kill", axis, group.Value)
	}
	return group
}

// removeGroup drops every matched unit from the pool, keeping order
func removeGroup(pool []topology.Worker, group TargetGroup) []topology.Worker {
	matched := map[string]bool{}
	for _, worker := range group.Workers {
		matched[worker.Locality.ProcessID] = true
	}
	kept := pool[:0]
	for _, worker := range pool {
		if !matched[worker.Locality.ProcessID] {
			kept = append(kept, worker)
		}
	}
	return kept
}

// rotateTail moves the pool's tail unit to the head. With replacement on, a
// killed unit rejoins the candidates but stops being the next tail target.
func rotateTail(pool []topology.Worker) []topology.Worker {
	if len(pool) < 2 {
		return pool
	}
	tail := pool[len(pool)-1]
	copy(pool[1:], pool[:len(pool)-1])
	pool[0] = tail
	return pool
}
