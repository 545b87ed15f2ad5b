package experiment

import (
	"context"
	"os"

	litmusLIB "github.com/litmuschaos/attrition-go/chaoslib/litmus/machine-attrition/lib"
	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	clients "github.com/litmuschaos/attrition-go/pkg/clients"
	experimentEnv "github.com/litmuschaos/attrition-go/pkg/cluster/machine-attrition/environment"
	experimentTypes "github.com/litmuschaos/attrition-go/pkg/cluster/machine-attrition/types"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/result"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MachineAttrition injects machine-level attrition against the cluster
func MachineAttrition(ctx context.Context, clients clients.ClientSets) {
	span := trace.SpanFromContext(ctx)

	var err error
	experimentsDetails := experimentTypes.ExperimentDetails{}
	resultDetails := types.ResultDetails{}
	chaosDetails := types.ChaosDetails{}
	report := experimentTypes.AttritionReport{}

	//Fetching all the ENV passed from the runner
	log.Infof("[PreReq]: Getting the ENV for the %v experiment", os.Getenv("EXPERIMENT_NAME"))
	rng, err := experimentEnv.GetENV(&experimentsDetails)
	if err != nil {
		log.Errorf("Unable to resolve the experiment tunables: %v", err)
		span.SetStatus(codes.Error, "Unable to resolve the experiment tunables")
		span.RecordError(err)
		return
	}
	clients.Rng = rng

	// Initialize the chaos attributes
	types.InitialiseChaosVariables(&chaosDetails)

	// Initialize Chaos Result Parameters
	types.SetResultAttributes(&resultDetails, chaosDetails)

	//Updating the chaos result in the beginning of experiment
	log.Infof("[PreReq]: Updating the chaos result of %v experiment (SOT)", experimentsDetails.ExperimentName)
	if err = result.ChaosResult(&chaosDetails, &resultDetails, "SOT"); err != nil {
		log.Errorf("Unable to create the run record: %v", err)
		result.RecordAfterFailure(&chaosDetails, &resultDetails, result.ResultUpdatePreChaos, err)
		span.SetStatus(codes.Error, "Unable to create the run record")
		span.RecordError(err)
		return
	}

	// Set the chaos result uid
	result.SetResultUID(&resultDetails, &chaosDetails)

	//DISPLAY THE ATTRITION INFORMATION
	log.InfoWithValues("The attrition information is as follows", logrus.Fields{
		"Mechanism":        clients.Mechanism.Name(),
		"Chaos Duration":   experimentsDetails.ChaosDuration,
		"Machines To Kill": experimentsDetails.MachinesToKill,
		"Ramp Time":        experimentsDetails.RampTime,
		"Sequence":         experimentsDetails.Sequence,
		"Random Seed":      clients.Rng.Seed(),
	})

	err = litmusLIB.PrepareMachineAttrition(ctx, &experimentsDetails, clients, &resultDetails, &report, &chaosDetails)
	resultDetails.Outcome = report.Outcome
	if err != nil {
		if cerrors.IsExpectedTermination(err) {
			// the workload handed its own client over to the attrition it
			// injected, that is a normal end of the run
			log.Infof("[End]: %v experiment ends by scheduling its own client for reboot", experimentsDetails.ExperimentName)
		} else {
			log.Errorf("Chaos injection failed: %v", err)
			result.RecordAfterFailure(&chaosDetails, &resultDetails, result.ChaosInjection, err)
			span.SetStatus(codes.Error, "Chaos injection failed")
			span.RecordError(err)
			return
		}
	}

	log.Infof("[Confirmation]: %v chaos has been injected successfully", experimentsDetails.ExperimentName)
	resultDetails.Verdict = types.PassVerdict

	// a storage-failure grace window must have resolved before the run can pass
	if report.Grace != nil {
		log.Info("[Status]: Waiting for the storage-failure grace window to resolve (post-chaos)")
		if err = report.Grace.Await(); err != nil {
			log.Errorf("Grace window did not resolve: %v", err)
			result.RecordAfterFailure(&chaosDetails, &resultDetails, result.GraceWindowUnresolved, err)
			span.SetStatus(codes.Error, "Grace window did not resolve")
			span.RecordError(err)
			return
		}
		log.Info("[Status]: The storage-failure grace window resolved cleanly")
	}

	log.InfoWithValues("[Status]: The attrition summary is as follows", logrus.Fields{
		"Outcome":        string(report.Outcome),
		"Killed":         report.KilledCount,
		"Initial Pool":   report.InitialPool,
		"Remaining Pool": report.RemainingPool,
	})

	//Updating the chaosResult in the end of experiment
	log.Infof("[The End]: Updating the chaos result of %v experiment (EOT)", experimentsDetails.ExperimentName)
	types.SetResultAfterCompletion(&resultDetails, types.PassVerdict, "Completed", "N/A", report.Outcome)
	if err = result.ChaosResult(&chaosDetails, &resultDetails, "EOT"); err != nil {
		log.Errorf("Unable to update the run record: %v", err)
		span.SetStatus(codes.Error, "Unable to update the run record")
		span.RecordError(err)
		return
	}

	result.Summary(&resultDetails)
}
