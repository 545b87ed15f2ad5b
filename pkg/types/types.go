package types

import (
	"os"
	"strconv"

	clientTypes "k8s.io/apimachinery/pkg/types"
)

const (
	// AwaitedVerdict marked the start of test
	AwaitedVerdict string = "Awaited"
	// PassVerdict marked the verdict as passed in the end of experiment
	PassVerdict string = "Pass"
	// FailVerdict marked the verdict as failed in the end of experiment
	FailVerdict string = "Fail"
	// AbortVerdict marked the verdict as abort when experiment aborted
	AbortVerdict string = "Abort"
)

// Outcome states how the attrition loop ended
type Outcome string

const (
	// OutcomeCompleted the loop delivered its full kill quota
	OutcomeCompleted Outcome = "Completed"
	// OutcomeTimedOut the loop was cancelled by the test duration deadline
	OutcomeTimedOut Outcome = "TimedOut"
	// OutcomeSelfKill the loop ended by scheduling its own client for reboot
	OutcomeSelfKill Outcome = "SelfKill"
)

// ResultDetails is for collecting all the chaos-result-related details
type ResultDetails struct {
	Name      string
	Verdict   string
	FailStep  string
	Phase     string
	Outcome   Outcome
	ResultUID clientTypes.UID
}

// ChaosDetails is for collecting all the global variables
type ChaosDetails struct {
	ChaosUID       clientTypes.UID
	EngineName     string
	InstanceID     string
	ExperimentName string
	Timeout        int
	Delay          int
	ChaosDuration  int
	Targets        []TargetDetails
}

// TargetDetails tracks the chaos status of one attacked unit
type TargetDetails struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	ChaosStatus string `yaml:"chaosStatus"`
}

//InitialiseChaosVariables initialise all the global variables
func InitialiseChaosVariables(chaosDetails *ChaosDetails) {
	chaosDetails.ChaosUID = clientTypes.UID(os.Getenv("CHAOS_UID"))
	chaosDetails.ExperimentName = Getenv("EXPERIMENT_NAME", "machine-attrition")
	chaosDetails.EngineName = os.Getenv("CHAOSENGINE")
	chaosDetails.InstanceID = os.Getenv("INSTANCE_ID")
	chaosDetails.ChaosDuration, _ = strconv.Atoi(Getenv("TOTAL_CHAOS_DURATION", "10"))
	chaosDetails.Timeout, _ = strconv.Atoi(Getenv("STATUS_CHECK_TIMEOUT", "180"))
	chaosDetails.Delay, _ = strconv.Atoi(Getenv("STATUS_CHECK_DELAY", "2"))
	chaosDetails.Targets = nil
}

//SetResultAttributes initialise all the chaos result ENV
func SetResultAttributes(resultDetails *ResultDetails, chaosDetails ChaosDetails) {
	resultDetails.Verdict = AwaitedVerdict
	resultDetails.Phase = "Running"
	resultDetails.FailStep = "N/A"
	if chaosDetails.EngineName != "" {
		resultDetails.Name = chaosDetails.EngineName + "-" + chaosDetails.ExperimentName
	} else {
		resultDetails.Name = chaosDetails.ExperimentName
	}

	if chaosDetails.InstanceID != "" {
		resultDetails.Name = resultDetails.Name + "-" + chaosDetails.InstanceID
	}
}

//SetResultAfterCompletion set all the chaos result ENV in the EOT
func SetResultAfterCompletion(resultDetails *ResultDetails, verdict, phase, failStep string, outcome Outcome) {
	resultDetails.Verdict = verdict
	resultDetails.Phase = phase
	resultDetails.FailStep = failStep
	resultDetails.Outcome = outcome
}

// Getenv fetch the env and set the default value, if any env is not present
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}
