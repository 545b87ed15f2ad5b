package lib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	clients "github.com/litmuschaos/attrition-go/pkg/clients"
	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
	experimentTypes "github.com/litmuschaos/attrition-go/pkg/cluster/machine-attrition/types"
	"github.com/litmuschaos/attrition-go/pkg/cluster/remote"
	"github.com/litmuschaos/attrition-go/pkg/cluster/simulation"
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/random"
	"github.com/stretchr/testify/require"
)

func attritionDetails() *experimentTypes.ExperimentDetails {
	return &experimentTypes.ExperimentDetails{
		ExperimentName:      "machine-attrition",
		ChaosDuration:       30,
		MachinesToKill:      100,
		MachinesToLeave:     1,
		SuspendDuration:     1,
		Timeout:             5,
		Delay:               1,
		Sequence:            "parallel",
		AllowFaultInjection: true,
		ClientCount:         1,
	}
}

func simClients(layout simulation.Layout, seed int64) (clients.ClientSets, *simulation.Cluster) {
	cluster := simulation.NewCluster(layout)
	return clients.ClientSets{
		Roster:    cluster,
		Mechanism: simulation.NewMechanism(cluster),
		Database:  simulation.NewDatabase(),
		Rng:       random.NewSource(seed),
	}, cluster
}

func runAttrition(t *testing.T, experimentsDetails *experimentTypes.ExperimentDetails, clientSets clients.ClientSets) (*experimentTypes.AttritionReport, *types.ChaosDetails, error) {
	t.Helper()
	report := &experimentTypes.AttritionReport{}
	chaosDetails := &types.ChaosDetails{ExperimentName: experimentsDetails.ExperimentName}
	resultDetails := &types.ResultDetails{}
	err := PrepareMachineAttrition(context.Background(), experimentsDetails, clientSets, resultDetails, report, chaosDetails)
	return report, chaosDetails, err
}

func TestPrepareStopsAtPoolFloor(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 5,
		ProcessesPerMachine: 1,
		Testers:             1,
	}, 7)
	experimentsDetails := attritionDetails()
	experimentsDetails.WaitForVersion = true

	report, chaosDetails, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, report.Outcome)
	require.Equal(t, 5, report.InitialPool)
	require.Equal(t, 4, report.KilledCount)
	require.Equal(t, 1, report.RemainingPool)

	events := cluster.Events()
	require.Len(t, events, 4)
	targets := map[string]bool{}
	for _, event := range events {
		require.Equal(t, "zone", event.Scope)
		require.False(t, targets[event.Target], "zone %v killed twice", event.Target)
		targets[event.Target] = true
	}
	require.Len(t, chaosDetails.Targets, 4)
	for _, target := range chaosDetails.Targets {
		require.Equal(t, "Zone", target.Kind)
		require.Equal(t, "injected", target.ChaosStatus)
	}
}

func TestPrepareReplacementRotatesKilledUnits(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 3,
		ProcessesPerMachine: 1,
	}, 3)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 2
	experimentsDetails.MachinesToKill = 2
	experimentsDetails.MachinesToLeave = 0
	experimentsDetails.Replacement = true

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, 3, report.InitialPool)
	require.Equal(t, 3, report.RemainingPool, "replacement keeps the pool size")

	events := cluster.Events()
	require.Equal(t, report.KilledCount, len(events))
	require.GreaterOrEqual(t, report.KilledCount, 1)
	for i, event := range events {
		require.Equal(t, "zone", event.Scope)
		if i > 0 {
			require.NotEqual(t, events[i-1].Target, event.Target, "back-to-back kills hit the same zone")
		}
	}
}

func TestPrepareForcedRebootNeverFailsProcesses(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 5,
		ProcessesPerMachine: 1,
	}, 5)
	experimentsDetails := attritionDetails()
	experimentsDetails.Reboot = true

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, report.Outcome)
	require.Equal(t, 4, report.KilledCount)

	reboots := 0
	for _, process := range cluster.Processes() {
		require.False(t, process.Failed, "a reboot kill must not fail %v", process.Locality.ProcessID)
		require.False(t, process.Faulted)
		reboots += process.Reboots
	}
	require.Equal(t, 4, reboots)
	for _, event := range cluster.Events() {
		require.Equal(t, topology.Reboot, event.Type)
	}
}

func TestPrepareDisallowedFaultInjectionStaysClean(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 5,
		ProcessesPerMachine: 1,
	}, 9)
	experimentsDetails := attritionDetails()
	experimentsDetails.AllowFaultInjection = false

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, 4, report.KilledCount)
	for _, event := range cluster.Events() {
		require.NotEqual(t, topology.InjectFaults, event.Type)
	}
	for _, process := range cluster.Processes() {
		require.False(t, process.Faulted)
	}
}

func TestPrepareTimesOutAtDeadline(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 5,
		ProcessesPerMachine: 1,
	}, 1)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 0
	experimentsDetails.MachinesToKill = 5

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeTimedOut, report.Outcome)
	require.Zero(t, report.KilledCount)
	require.Empty(t, cluster.Events())
	require.Equal(t, report.InitialPool, report.RemainingPool)
}

func TestPrepareKillsWholeDatacenter(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         2,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 3,
		ProcessesPerMachine: 1,
		Testers:             1,
	}, 13)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.KillDc = true
	experimentsDetails.TargetID = "dc0"

	report, chaosDetails, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, report.Outcome)
	require.Equal(t, 3, report.KilledCount)
	require.Equal(t, 3, report.RemainingPool)

	events := cluster.Events()
	require.Len(t, events, 1)
	require.Equal(t, "datacenter", events[0].Scope)
	require.Equal(t, "dc0", events[0].Target)

	for _, process := range cluster.Processes() {
		switch process.Locality.DcID {
		case "dc0":
			require.True(t, process.Failed || process.Reboots > 0, "process %v survived the datacenter kill", process.Locality.ProcessID)
		default:
			require.False(t, process.Failed || process.Reboots > 0 || process.DataLoss || process.Faulted,
				"process %v outside dc0 was touched", process.Locality.ProcessID)
		}
	}
	require.Len(t, chaosDetails.Targets, 1)
	require.Equal(t, "DataCenter", chaosDetails.Targets[0].Kind)
	require.Equal(t, "dc0", chaosDetails.Targets[0].Name)
}

func TestPrepareDataHallKillHitsOnlyMatchedHall(t *testing.T) {
	for _, sequence := range []string{"serial", "parallel"} {
		t.Run(sequence, func(t *testing.T) {
			clientSets, cluster := simClients(simulation.Layout{
				Datacenters:         1,
				DataHallsPerDc:      2,
				MachinesPerDataHall: 3,
				ProcessesPerMachine: 1,
			}, 21)
			experimentsDetails := attritionDetails()
			experimentsDetails.ChaosDuration = 1
			experimentsDetails.KillDatahall = true
			experimentsDetails.TargetID = "dc0-hall1"
			experimentsDetails.Sequence = sequence

			report, _, err := runAttrition(t, experimentsDetails, clientSets)
			require.NoError(t, err)
			require.Equal(t, 3, report.KilledCount)

			events := cluster.Events()
			require.Len(t, events, 3)
			killed := map[string]bool{}
			for _, event := range events {
				require.Equal(t, "zone", event.Scope)
				require.Equal(t, events[0].Type, event.Type, "one draw decides the whole group")
				killed[event.Target] = true
			}
			require.True(t, killed["dc0-hall1-m0"] && killed["dc0-hall1-m1"] && killed["dc0-hall1-m2"])
			for _, process := range cluster.Processes() {
				if process.Locality.DataHallID == "dc0-hall0" {
					require.False(t, process.Failed || process.Reboots > 0, "hall0 process %v was touched", process.Locality.ProcessID)
				}
			}
		})
	}
}

func TestPrepareProcessAxisKillsZoneRepresentative(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 3,
		ProcessesPerMachine: 2,
	}, 2)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.KillProcess = true
	experimentsDetails.TargetID = "dc0-hall0-m1-p0"
	experimentsDetails.Sequence = "serial"

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, 1, report.KilledCount)

	events := cluster.Events()
	require.Len(t, events, 1)
	require.Equal(t, "zone", events[0].Scope)
	require.Equal(t, "dc0-hall0-m1", events[0].Target)
	for _, process := range cluster.Processes() {
		if process.Locality.ZoneID != "dc0-hall0-m1" {
			require.False(t, process.Failed || process.Reboots > 0)
		}
	}
}

func TestPrepareUnmatchedTargetIsNoOp(t *testing.T) {
	clientSets, cluster := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 3,
		ProcessesPerMachine: 1,
	}, 4)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.KillMachine = true
	experimentsDetails.TargetID = "dc0-hall0-m99"

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, report.Outcome)
	require.Zero(t, report.KilledCount)
	require.Empty(t, cluster.Events())
	require.Equal(t, report.InitialPool, report.RemainingPool)
}

func TestPrepareSelfKillRaisesRebootNotice(t *testing.T) {
	clientSets, _ := simClients(simulation.Layout{
		Datacenters:         1,
		DataHallsPerDc:      1,
		MachinesPerDataHall: 3,
		ProcessesPerMachine: 1,
	}, 6)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.MachinesToKill = 0
	experimentsDetails.KillSelf = true

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.Error(t, err)
	require.True(t, cerrors.IsExpectedTermination(err))
	require.Equal(t, types.OutcomeSelfKill, report.Outcome)
}

func TestPreparePassiveClientStaysIdle(t *testing.T) {
	clientSets, cluster := simClients(simulation.DefaultLayout(), 8)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.ClientID = 1
	experimentsDetails.ClientCount = 2

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Zero(t, report.KilledCount)
	require.Empty(t, cluster.Events())

	// a passive client still honors a self-kill request, right away
	experimentsDetails.KillSelf = true
	report, _, err = runAttrition(t, experimentsDetails, clientSets)
	require.True(t, cerrors.IsExpectedTermination(err))
	require.Equal(t, types.OutcomeSelfKill, report.Outcome)
	require.Empty(t, cluster.Events())
}

func TestEnabledOnEveryLiveClient(t *testing.T) {
	simMechanism := simulation.NewMechanism(simulation.NewCluster(simulation.DefaultLayout()))
	liveMechanism := remote.NewMechanism(remote.NewClient("http://127.0.0.1:9"), time.Second)
	experimentsDetails := attritionDetails()

	experimentsDetails.ClientID = 0
	require.True(t, enabledOn(experimentsDetails, simMechanism))
	experimentsDetails.ClientID = 1
	require.False(t, enabledOn(experimentsDetails, simMechanism))
	require.True(t, enabledOn(experimentsDetails, liveMechanism))
}

func TestChooseKillTypeWeighting(t *testing.T) {
	simMechanism := simulation.NewMechanism(simulation.NewCluster(simulation.DefaultLayout()))
	liveMechanism := remote.NewMechanism(remote.NewClient("http://127.0.0.1:9"), time.Second)
	rng := random.NewSource(42)

	experimentsDetails := attritionDetails()
	experimentsDetails.Reboot = true
	for i := 0; i < 100; i++ {
		require.Equal(t, topology.Reboot, chooseKillType(rng, experimentsDetails, simMechanism))
	}

	experimentsDetails.Reboot = false
	seen := map[topology.KillType]int{}
	for i := 0; i < 1000; i++ {
		seen[chooseKillType(rng, experimentsDetails, simMechanism)]++
	}
	require.Zero(t, seen[topology.Reboot])
	require.Greater(t, seen[topology.RebootAndDelete], 0)
	require.Greater(t, seen[topology.KillInstantly], 0)
	require.Greater(t, seen[topology.InjectFaults], 0)

	for i := 0; i < 1000; i++ {
		require.NotEqual(t, topology.InjectFaults, chooseKillType(rng, experimentsDetails, liveMechanism))
	}

	experimentsDetails.AllowFaultInjection = false
	for i := 0; i < 1000; i++ {
		require.NotEqual(t, topology.InjectFaults, chooseKillType(rng, experimentsDetails, simMechanism))
	}
}

func TestRunChaosHooksArmBothMutations(t *testing.T) {
	clientSets, cluster := simClients(simulation.DefaultLayout(), 15)
	workers, err := cluster.Workers(context.Background())
	require.NoError(t, err)
	target := workers[0]

	db := clientSets.Database.(*simulation.Database)
	graceWindows := 0
	for i := 0; i < 3000; i++ {
		report := &experimentTypes.AttritionReport{}
		require.NoError(t, runChaosHooks(context.Background(), clientSets, target, report))
		if report.Grace != nil {
			graceWindows++
		}
	}
	require.Greater(t, graceWindows, 0, "the storage-failure window never armed")
	_, leased := db.Value(database.HealthyZoneKey)
	require.True(t, leased, "the healthy-zone lease never landed")
}

// fleetState records what a fake live deployment received: the roster queries
// against the control plane and every reboot request delivered to a worker
type fleetState struct {
	mu           sync.Mutex
	rosterCalls  int
	reboots      []fleetReboot
	controlPlane *httptest.Server
	workers      []*httptest.Server
}

type fleetReboot struct {
	processID string
	request   remote.RebootRequest
}

type fleetWorkerRecord struct {
	ProcessID  string `json:"process_id"`
	ZoneID     string `json:"zone_id"`
	MachineID  string `json:"machine_id"`
	DataHallID string `json:"data_hall_id"`
	DcID       string `json:"dc_id"`
	Class      string `json:"class"`
	Address    string `json:"address"`
}

func newFleetState(t *testing.T, records []fleetWorkerRecord) *fleetState {
	t.Helper()
	state := &fleetState{}
	for i := range records {
		record := &records[i]
		processID := record.ProcessID
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var request remote.RebootRequest
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			state.mu.Lock()
			state.reboots = append(state.reboots, fleetReboot{processID: processID, request: request})
			state.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)
		state.workers = append(state.workers, server)
		record.Address = strings.TrimPrefix(server.URL, "http://")
	}
	state.controlPlane = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		state.rosterCalls++
		state.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"workers": records}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	t.Cleanup(state.controlPlane.Close)
	return state
}

func (s *fleetState) rebootsByProcess() map[string][]remote.RebootRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]remote.RebootRequest{}
	for _, reboot := range s.reboots {
		out[reboot.processID] = append(out[reboot.processID], reboot.request)
	}
	return out
}

func liveClients(state *fleetState, seed int64) clients.ClientSets {
	client := remote.NewClient(state.controlPlane.URL)
	return clients.ClientSets{
		Roster:    client,
		Mechanism: remote.NewMechanism(client, time.Second),
		Database:  remote.NewDatabase(client),
		Rng:       random.NewSource(seed),
	}
}

func TestPrepareLiveRollingTargetsRosterTail(t *testing.T) {
	state := newFleetState(t, []fleetWorkerRecord{
		{ProcessID: "p0", ZoneID: "z0", MachineID: "m0", DataHallID: "h0", DcID: "dc0", Class: "storage"},
		{ProcessID: "p1", ZoneID: "z1", MachineID: "m1", DataHallID: "h0", DcID: "dc0", Class: "storage"},
		{ProcessID: "p2", ZoneID: "z2", MachineID: "m2", DataHallID: "h0", DcID: "dc0", Class: "storage"},
	})
	clientSets := liveClients(state, 17)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 2
	experimentsDetails.MachinesToKill = 2
	// live runs enable every client
	experimentsDetails.ClientID = 1
	experimentsDetails.ClientCount = 3

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, report.Outcome)
	require.Equal(t, 2, report.KilledCount)

	reboots := state.rebootsByProcess()
	require.Len(t, reboots["p2"], 2, "the roster tail takes the kills")
	require.Len(t, reboots["p0"], 0)
	require.Len(t, reboots["p1"], 0)
	for _, request := range reboots["p2"] {
		require.Equal(t, remote.RebootWaitForever, request.WaitForDuration)
	}
	state.mu.Lock()
	rosterCalls := state.rosterCalls
	state.mu.Unlock()
	require.GreaterOrEqual(t, rosterCalls, 3, "each round re-reads the roster")
}

func TestPrepareLiveMachineGroupRebootsMatchedWorkers(t *testing.T) {
	state := newFleetState(t, []fleetWorkerRecord{
		{ProcessID: "p0", ZoneID: "z0", MachineID: "m0", DataHallID: "h0", DcID: "dc0", Class: "storage"},
		{ProcessID: "p1", ZoneID: "z1", MachineID: "m0", DataHallID: "h0", DcID: "dc0", Class: "transaction"},
		{ProcessID: "p2", ZoneID: "z2", MachineID: "m1", DataHallID: "h0", DcID: "dc0", Class: "storage"},
	})
	clientSets := liveClients(state, 23)
	experimentsDetails := attritionDetails()
	experimentsDetails.ChaosDuration = 1
	experimentsDetails.KillMachine = true
	experimentsDetails.TargetID = "m0"

	report, _, err := runAttrition(t, experimentsDetails, clientSets)
	require.NoError(t, err)
	require.Equal(t, 2, report.KilledCount)

	reboots := state.rebootsByProcess()
	require.Len(t, reboots["p0"], 1)
	require.Len(t, reboots["p1"], 1)
	require.Len(t, reboots["p2"], 0)
	require.Equal(t, reboots["p0"][0].DeleteData, reboots["p1"][0].DeleteData, "one draw decides the whole group")
	require.Equal(t, remote.RebootWaitForever, reboots["p0"][0].WaitForDuration)
}
