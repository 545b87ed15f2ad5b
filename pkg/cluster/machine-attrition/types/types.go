package types

import (
	clientTypes "k8s.io/apimachinery/pkg/types"

	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
	coreTypes "github.com/litmuschaos/attrition-go/pkg/types"
)

// ExperimentDetails is for collecting all the experiment-related details
type ExperimentDetails struct {
	ExperimentName string
	EngineName     string
	RampTime       int
	ChaosDuration  int
	ChaosUID       clientTypes.UID
	InstanceID     string
	Timeout        int
	Delay          int
	Sequence       string

	// workload tunables, resolved from env, options file and random defaults
	MachinesToKill      int
	MachinesToLeave     int
	SuspendDuration     int
	Reboot              bool
	KillDc              bool
	KillMachine         bool
	KillDatahall        bool
	KillProcess         bool
	KillSelf            bool
	TargetID            string
	Replacement         bool
	WaitForVersion      bool
	AllowFaultInjection bool

	// deployment context
	Region      string
	ClientID    int
	ClientCount int
}

// AttritionReport is what one finished run hands back to the experiment
type AttritionReport struct {
	Outcome       coreTypes.Outcome
	KilledCount   int
	InitialPool   int
	RemainingPool int
	// Grace is the last storage-failure suppression window opened during the
	// run, nil when no window was opened
	Grace *database.GraceWindow
}
