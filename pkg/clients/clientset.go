package clients

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
	"github.com/litmuschaos/attrition-go/pkg/cluster/remote"
	"github.com/litmuschaos/attrition-go/pkg/cluster/simulation"
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/random"
)

// ClientSets is the collection of cluster handles an experiment runs against
type ClientSets struct {
	Roster    topology.Roster
	Mechanism topology.KillMechanism
	Database  database.Database
	Rng       *random.Source
}

// GenerateClientSets wires the handles for the configured attrition mode. In
// simulation mode everything lands on one in-process cluster model, in remote
// mode on the control plane named by CONTROL_PLANE_ENDPOINT.
func (clientSets *ClientSets) GenerateClientSets() error {

	mode := types.Getenv("ATTRITION_MODE", "simulation")
	switch mode {
	case "simulation":
		cluster := simulation.NewCluster(getSimLayout())
		clientSets.Roster = cluster
		clientSets.Mechanism = simulation.NewMechanism(cluster)
		clientSets.Database = simulation.NewDatabase()
	case "remote":
		endpoint := types.Getenv("CONTROL_PLANE_ENDPOINT", "")
		if endpoint == "" {
			return errors.Errorf("remote mode needs CONTROL_PLANE_ENDPOINT")
		}
		client := remote.NewClient(endpoint)
		suspend, _ := strconv.Atoi(types.Getenv("SUSPEND_DURATION", "1"))
		clientSets.Roster = client
		clientSets.Mechanism = remote.NewMechanism(client, time.Duration(suspend)*time.Second)
		clientSets.Database = remote.NewDatabase(client)
	default:
		return errors.Errorf("unknown attrition mode %q", mode)
	}
	return nil
}

// getSimLayout reads the simulated cluster shape, unset fields keep the
// default layout
func getSimLayout() simulation.Layout {
	layout := simulation.DefaultLayout()
	if v, err := strconv.Atoi(types.Getenv("SIM_DATACENTERS", "")); err == nil {
		layout.Datacenters = v
	}
	if v, err := strconv.Atoi(types.Getenv("SIM_DATA_HALLS", "")); err == nil {
		layout.DataHallsPerDc = v
	}
	if v, err := strconv.Atoi(types.Getenv("SIM_MACHINES", "")); err == nil {
		layout.MachinesPerDataHall = v
	}
	if v, err := strconv.Atoi(types.Getenv("SIM_PROCESSES", "")); err == nil {
		layout.ProcessesPerMachine = v
	}
	if v, err := strconv.Atoi(types.Getenv("SIM_TESTERS", "")); err == nil {
		layout.Testers = v
	}
	return layout
}
