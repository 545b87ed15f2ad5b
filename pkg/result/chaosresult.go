package result

import (
	"fmt"
	"os"

	"github.com/kyokomi/emoji"
	"github.com/palantir/stacktrace"
	"gopkg.in/yaml.v2"
	clientTypes "k8s.io/apimachinery/pkg/types"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/stringutils"
)

// Record is the durable form of one experiment run. It is rewritten on every
// state transition so the orchestrator always sees the latest phase.
type Record struct {
	Name           string                `yaml:"name"`
	UID            clientTypes.UID       `yaml:"uid,omitempty"`
	EngineName     string                `yaml:"engineName"`
	ExperimentName string                `yaml:"experimentName"`
	InstanceID     string                `yaml:"instanceId,omitempty"`
	Status         RecordStatus          `yaml:"status"`
	Targets        []types.TargetDetails `yaml:"targets,omitempty"`
}

// RecordStatus mirrors the experiment status block of the record
type RecordStatus struct {
	Phase    string `yaml:"phase"`
	Verdict  string `yaml:"verdict"`
	FailStep string `yaml:"failStep,omitempty"`
	Outcome  string `yaml:"outcome,omitempty"`
}

//ChaosResult creates and updates the run record. With state SOT the record is
//initialized in Awaited verdict, with EOT it is finalized from resultDetails.
func ChaosResult(chaosDetails *types.ChaosDetails, resultDetails *types.ResultDetails, state string) error {

	if state == "EOT" {
		resultDetails.Phase = "Completed"
	}
	record := Record{
		Name:           resultDetails.Name,
		UID:            resultDetails.ResultUID,
		EngineName:     chaosDetails.EngineName,
		ExperimentName: chaosDetails.ExperimentName,
		InstanceID:     chaosDetails.InstanceID,
		Status: RecordStatus{
			Phase:    resultDetails.Phase,
			Verdict:  resultDetails.Verdict,
			FailStep: resultDetails.FailStep,
			Outcome:  string(resultDetails.Outcome),
		},
		Targets: chaosDetails.Targets,
	}

	log.InfoWithValues("[Status]: Run record updated", map[string]interface{}{
		"Name":    record.Name,
		"Phase":   record.Status.Phase,
		"Verdict": record.Status.Verdict,
		"State":   state,
	})
	return writeRecord(record)
}

// writeRecord persists the record when RESULT_FILE names a path, otherwise
// the log lines above are the only trace of the run
func writeRecord(record Record) error {
	path := types.Getenv("RESULT_FILE", "")
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(record)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("could not encode the run record: %v", err)}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return stacktrace.Propagate(
			cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: err.Error(), Target: path},
			"could not persist the run record")
	}
	return nil
}

// RecordAfterFailure marks the run failed at the given step and writes the
// final record. An aborted run keeps its own verdict.
func RecordAfterFailure(chaosDetails *types.ChaosDetails, resultDetails *types.ResultDetails, failStep string, err error) {
	reason, errorCode := cerrors.GetRootCauseAndErrorCode(err, resultDetails.Phase)
	types.SetResultAfterCompletion(resultDetails, types.FailVerdict, "Completed", failStep+", err: "+reason, resultDetails.Outcome)
	if errorCode == cerrors.ErrorTypeExperimentAborted {
		resultDetails.Verdict = types.AbortVerdict
	}
	if updateErr := ChaosResult(chaosDetails, resultDetails, "EOT"); updateErr != nil {
		log.Errorf("Unable to update the run record after a failure, err: %v", updateErr)
	}
}

// SetResultUID stamps the run with a unique id so repeated runs under the
// same engine stay distinguishable in harvested records
func SetResultUID(resultDetails *types.ResultDetails, chaosDetails *types.ChaosDetails) {
	if resultDetails.ResultUID != "" {
		return
	}
	resultDetails.ResultUID = clientTypes.UID(fmt.Sprintf("%v-%v", chaosDetails.ExperimentName, stringutils.GetRunID()))
}

//Summary prints the final verdict banner
func Summary(resultDetails *types.ResultDetails) {
	switch resultDetails.Verdict {
	case types.PassVerdict:
		log.Infof("[Summary]: %v experiment verdict is %v %v outcome: %v", resultDetails.Name, resultDetails.Verdict, emoji.Sprint(":thumbsup:"), resultDetails.Outcome)
	default:
		log.Infof("[Summary]: %v experiment verdict is %v %v outcome: %v", resultDetails.Name, resultDetails.Verdict, emoji.Sprint(":cry:"), resultDetails.Outcome)
	}
}
