package lib

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	clients "github.com/litmuschaos/attrition-go/pkg/clients"
	awslib "github.com/litmuschaos/attrition-go/pkg/cloud/aws/ec2"
	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
	experimentTypes "github.com/litmuschaos/attrition-go/pkg/cluster/machine-attrition/types"
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/math"
	"github.com/litmuschaos/attrition-go/pkg/metrics"
	"github.com/litmuschaos/attrition-go/pkg/telemetry"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/common"
	"github.com/litmuschaos/attrition-go/pkg/utils/random"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/context"
)

var (
	err           error
	inject, abort chan os.Signal
)

// PrepareMachineAttrition contains the preparation and injection steps for the experiment
func PrepareMachineAttrition(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, resultDetails *types.ResultDetails, report *experimentTypes.AttritionReport, chaosDetails *types.ChaosDetails) error {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "PrepareMachineAttrition")
	defer span.End()

	// inject channel is used to transmit signal notifications.
	inject = make(chan os.Signal, 1)
	// Catch and relay certain signal(s) to inject channel.
	signal.Notify(inject, os.Interrupt, syscall.SIGTERM)

	// abort channel is used to transmit signal notifications.
	abort = make(chan os.Signal, 1)
	// Catch and relay certain signal(s) to abort channel.
	signal.Notify(abort, os.Interrupt, syscall.SIGTERM)

	// Waiting for the ramp time before chaos injection
	if experimentsDetails.RampTime != 0 {
		log.Infof("[Ramp]: Waiting for the %vs ramp time before injecting chaos", experimentsDetails.RampTime)
		common.WaitForDuration(experimentsDetails.RampTime)
	}

	report.Outcome = types.OutcomeCompleted

	if !enabledOn(experimentsDetails, clients.Mechanism) {
		log.Infof("[Info]: Client %v of %v stays passive for this run", experimentsDetails.ClientID, experimentsDetails.ClientCount)
		if experimentsDetails.KillSelf {
			report.Outcome = types.OutcomeSelfKill
			return cerrors.PleaseReboot(fmt.Sprintf("client-%v", experimentsDetails.ClientID))
		}
		return nil
	}

	experimentsDetails.MachinesToLeave = math.Maximum(experimentsDetails.MachinesToLeave, 0)

	if tuner, ok := clients.Mechanism.(topology.SuspendTuner); ok {
		tuner.SetSuspendDuration(time.Duration(experimentsDetails.SuspendDuration) * time.Second)
	}

	workers, err := clients.Roster.Workers(ctx)
	if err != nil {
		return stacktrace.Propagate(err, "could not fetch the worker roster")
	}
	pool := buildPool(workers, clients.Mechanism.Simulated(), clients.Rng)
	if len(pool) == 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Reason: "no kill candidates in the worker roster"}
	}
	report.InitialPool = len(pool)
	report.RemainingPool = len(pool)
	metrics.PoolSize.Set(float64(len(pool)))

	axis := topology.ChooseAxis(experimentsDetails.KillDc, experimentsDetails.KillMachine, experimentsDetails.KillDatahall, experimentsDetails.KillProcess)
	log.InfoWithValues("[Info]: The attrition tunables are:", logrus.Fields{
		"Mechanism":           clients.Mechanism.Name(),
		"Axis":                string(axis),
		"MachinesToKill":      experimentsDetails.MachinesToKill,
		"MachinesToLeave":     experimentsDetails.MachinesToLeave,
		"Pool":                len(pool),
		"Reboot":              experimentsDetails.Reboot,
		"Replacement":         experimentsDetails.Replacement,
		"WaitForVersion":      experimentsDetails.WaitForVersion,
		"AllowFaultInjection": experimentsDetails.AllowFaultInjection,
		"Chaos Duration":      experimentsDetails.ChaosDuration,
	})

	// watching for the abort signal and revert the chaos
	go abortWatcher(experimentsDetails, clients, chaosDetails)

	killCtx, cancel := context.WithTimeout(ctx, time.Duration(experimentsDetails.ChaosDuration)*time.Second)
	defer cancel()

	if axis.Grouped() {
		err = injectChaosInGroupMode(killCtx, experimentsDetails, clients, pool, axis, report, chaosDetails)
	} else {
		err = injectChaosInRollingMode(killCtx, experimentsDetails, clients, pool, report, chaosDetails)
	}
	if err != nil {
		return stacktrace.Propagate(err, "could not run machine attrition")
	}

	if experimentsDetails.KillSelf {
		report.Outcome = types.OutcomeSelfKill
		return cerrors.PleaseReboot(fmt.Sprintf("client-%v", experimentsDetails.ClientID))
	}

	// Waiting for the ramp time after chaos injection
	if experimentsDetails.RampTime != 0 {
		log.Infof("[Ramp]: Waiting for the %vs ramp time after injecting chaos", experimentsDetails.RampTime)
		common.WaitForDuration(experimentsDetails.RampTime)
	}
	return nil
}

// injectChaosInRollingMode kills one unit per round, spreading the kill quota
// across the chaos duration. Kill rounds stop once the quota is met or one
// more kill would push the pool below the configured floor.
func injectChaosInRollingMode(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, pool []topology.Worker, report *experimentTypes.AttritionReport, chaosDetails *types.ChaosDetails) error {
	select {
	case <-inject:
		// stopping the chaos execution, if abort signal received
		os.Exit(0)
	default:
		if experimentsDetails.MachinesToKill < 1 {
			log.Warn("kill quota is zero, nothing to do")
			return nil
		}
		rng := clients.Rng
		meanDelay := meanKillDelay(experimentsDetails)
		delayBeforeKill := rng.DurationUpTo(meanDelay)

		for report.KilledCount < experimentsDetails.MachinesToKill {
			if len(pool) <= experimentsDetails.MachinesToLeave {
				log.Infof("[Info]: Pool of %v units is down to the floor of %v, stopping early", len(pool), experimentsDetails.MachinesToLeave)
				break
			}
			metrics.IterationsTotal.Inc()
			log.InfoWithValues("[Chaos]: Next worker kill is scheduled", logrus.Fields{
				"KilledMachines":  report.KilledCount,
				"MachinesToKill":  experimentsDetails.MachinesToKill,
				"MachinesToLeave": experimentsDetails.MachinesToLeave,
				"Machines":        len(pool),
				"DelayBeforeKill": delayBeforeKill.String(),
			})
			if !sleepFor(ctx, delayBeforeKill) {
				markTimedOut(report)
				return nil
			}
			if !clients.Mechanism.Simulated() {
				workers, err := clients.Roster.Workers(ctx)
				if err != nil {
					return stacktrace.Propagate(err, "could not refresh the worker roster")
				}
				pool = buildPool(workers, false, rng)
				report.RemainingPool = len(pool)
				if len(pool) <= experimentsDetails.MachinesToLeave {
					log.Infof("[Info]: Pool of %v units is down to the floor of %v, stopping early", len(pool), experimentsDetails.MachinesToLeave)
					break
				}
			}
			if experimentsDetails.WaitForVersion {
				if err := database.WaitForReadVersion(ctx, clients.Database); err != nil {
					return timedOutOr(ctx, err, report, "could not confirm the cluster hands out read versions")
				}
			}
			target := pool[len(pool)-1]
			if clients.Mechanism.Simulated() {
				if err := runChaosHooks(ctx, clients, target, report); err != nil {
					return timedOutOr(ctx, err, report, "could not arm the chaos hook")
				}
			}
			killType := chooseKillType(rng, experimentsDetails, clients.Mechanism)
			log.InfoWithValues("[Chaos]: Killing the targeted unit", logrus.Fields{
				"Target":         target.Locality.ZoneID,
				"KillType":       string(killType),
				"KilledMachines": report.KilledCount,
			})
			if err := killUnit(ctx, experimentsDetails, clients, target, topology.AxisZone, killType, chaosDetails); err != nil {
				return stacktrace.Propagate(err, "could not kill the targeted unit")
			}
			report.KilledCount++
			if experimentsDetails.Replacement {
				pool = rotateTail(pool)
			} else {
				pool = pool[:len(pool)-1]
			}
			report.RemainingPool = len(pool)
			metrics.PoolSize.Set(float64(len(pool)))
			// the trailing drain of a met quota can get cut without turning
			// the run into a timeout
			if !sleepFor(ctx, meanDelay-delayBeforeKill) {
				if report.KilledCount < experimentsDetails.MachinesToKill {
					markTimedOut(report)
				}
				return nil
			}
			if report.Grace != nil && !report.Grace.Resolved() {
				select {
				case <-report.Grace.Done():
				case <-ctx.Done():
					if report.KilledCount < experimentsDetails.MachinesToKill {
						markTimedOut(report)
					}
					return nil
				}
			}
			delayBeforeKill = rng.DurationUpTo(meanDelay)
		}
	}
	return nil
}

// injectChaosInGroupMode does the single group kill of an axis mode. Every
// pool unit sharing the resolved axis value goes down in one round.
func injectChaosInGroupMode(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, pool []topology.Worker, axis topology.KillAxis, report *experimentTypes.AttritionReport, chaosDetails *types.ChaosDetails) error {
	select {
	case <-inject:
		// stopping the chaos execution, if abort signal received
		os.Exit(0)
	default:
		rng := clients.Rng
		meanDelay := meanKillDelay(experimentsDetails)
		delayBeforeKill := rng.DurationUpTo(meanDelay)
		if !sleepFor(ctx, delayBeforeKill) {
			markTimedOut(report)
			return nil
		}
		if experimentsDetails.WaitForVersion {
			if err := database.WaitForReadVersion(ctx, clients.Database); err != nil {
				return timedOutOr(ctx, err, report, "could not confirm the cluster hands out read versions")
			}
		}
		group := selectTargets(pool, axis, experimentsDetails.TargetID)
		if len(group.Workers) == 0 {
			return nil
		}
		killType := chooseKillType(rng, experimentsDetails, clients.Mechanism)
		log.InfoWithValues("[Chaos]: Killing every unit of the targeted group", logrus.Fields{
			"Axis":     string(group.Axis),
			"Value":    group.Value,
			"Units":    len(group.Workers),
			"KillType": string(killType),
		})
		if axis == topology.AxisDatacenter {
			// the mechanism fans a datacenter kill out itself
			if err := clients.Mechanism.KillDataCenter(ctx, group.Value, killType); err != nil {
				return stacktrace.Propagate(err, "could not kill the datacenter")
			}
			metrics.KillsTotal.WithLabelValues(string(axis), string(killType)).Add(float64(len(group.Workers)))
			common.SetTargets(group.Value, "injected", "DataCenter", chaosDetails)
			report.KilledCount = len(group.Workers)
		} else {
			switch strings.ToLower(experimentsDetails.Sequence) {
			case "serial":
				if err := killGroupInSerialMode(ctx, experimentsDetails, clients, group, killType, report, chaosDetails); err != nil {
					return stacktrace.Propagate(err, "could not run chaos in serial mode")
				}
			case "parallel":
				if err := killGroupInParallelMode(ctx, experimentsDetails, clients, group, killType, report, chaosDetails); err != nil {
					return stacktrace.Propagate(err, "could not run chaos in parallel mode")
				}
			default:
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("'%s' sequence is not supported", experimentsDetails.Sequence)}
			}
		}
		if !experimentsDetails.Replacement {
			pool = removeGroup(pool, group)
		}
		report.RemainingPool = len(pool)
		metrics.PoolSize.Set(float64(len(pool)))
		// the group kill landed, a cut of the trailing drain is not a timeout
		if !sleepFor(ctx, meanDelay-delayBeforeKill) {
			return nil
		}
	}
	return nil
}

// killGroupInSerialMode kills the matched units one by one, confirming each
// cloud escalation before moving on
func killGroupInSerialMode(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, group TargetGroup, killType topology.KillType, report *experimentTypes.AttritionReport, chaosDetails *types.ChaosDetails) error {
	for _, target := range group.Workers {
		instanceID, err := dispatchKill(ctx, experimentsDetails, clients, target, group.Axis, killType, chaosDetails)
		if err != nil {
			return stacktrace.Propagate(err, "could not kill unit %v", target.Locality.ProcessID)
		}
		if instanceID != "" {
			if err := awslib.WaitForEC2Down(experimentsDetails.Timeout, experimentsDetails.Delay, experimentsDetails.Region, instanceID); err != nil {
				return stacktrace.Propagate(err, "could not confirm the backing instance stopped")
			}
		}
		report.KilledCount++
	}
	return nil
}

// killGroupInParallelMode dispatches every kill first, then confirms the
// cloud escalations in a second pass
func killGroupInParallelMode(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, group TargetGroup, killType topology.KillType, report *experimentTypes.AttritionReport, chaosDetails *types.ChaosDetails) error {
	var escalated []string
	for _, target := range group.Workers {
		instanceID, err := dispatchKill(ctx, experimentsDetails, clients, target, group.Axis, killType, chaosDetails)
		if err != nil {
			return stacktrace.Propagate(err, "could not kill unit %v", target.Locality.ProcessID)
		}
		if instanceID != "" {
			escalated = append(escalated, instanceID)
		}
		report.KilledCount++
	}
	for _, instanceID := range escalated {
		if err := awslib.WaitForEC2Down(experimentsDetails.Timeout, experimentsDetails.Delay, experimentsDetails.Region, instanceID); err != nil {
			return stacktrace.Propagate(err, "could not confirm the backing instance stopped")
		}
	}
	return nil
}

// killUnit dispatches one kill and waits out any cloud escalation
func killUnit(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, target topology.Worker, axis topology.KillAxis, killType topology.KillType, chaosDetails *types.ChaosDetails) error {
	instanceID, err := dispatchKill(ctx, experimentsDetails, clients, target, axis, killType, chaosDetails)
	if err != nil {
		return err
	}
	if instanceID != "" {
		if err := awslib.WaitForEC2Down(experimentsDetails.Timeout, experimentsDetails.Delay, experimentsDetails.Region, instanceID); err != nil {
			return stacktrace.Propagate(err, "could not confirm the backing instance stopped")
		}
	}
	return nil
}

// dispatchKill sends one kill decision to the mechanism and records the
// target. Reboot rounds against the simulated cluster alternate between a
// zone-wide reboot and a plain process restart. Instant kills of live
// machines escalate to a cloud stop of the backing instance when it is known,
// the returned instance id is non-empty in that case.
func dispatchKill(ctx context.Context, experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, target topology.Worker, axis topology.KillAxis, killType topology.KillType, chaosDetails *types.ChaosDetails) (string, error) {
	mechanism := clients.Mechanism
	if killType == topology.Reboot && mechanism.Simulated() && clients.Rng.Float64() > 0.5 {
		if rebooter, ok := mechanism.(topology.ProcessRebooter); ok {
			if err := rebooter.RebootProcess(ctx, target.Locality.ZoneID, clients.Rng.Float64() > 0.5); err != nil {
				return "", stacktrace.Propagate(err, "could not reboot the process")
			}
			metrics.KillsTotal.WithLabelValues(string(axis), string(killType)).Inc()
			common.SetTargets(target.Locality.ZoneID, "injected", "Zone", chaosDetails)
			return "", nil
		}
	}
	if err := mechanism.KillUnit(ctx, target, killType); err != nil {
		return "", stacktrace.Propagate(err, "could not kill the unit")
	}
	metrics.KillsTotal.WithLabelValues(string(axis), string(killType)).Inc()
	common.SetTargets(target.Locality.ZoneID, "injected", "Zone", chaosDetails)
	if escalatesToCloud(experimentsDetails, mechanism, target, killType) {
		log.Infof("[Chaos]: Stopping the EC2 instance %v backing zone %v", target.Locality.InstanceID, target.Locality.ZoneID)
		if err := awslib.EC2Stop(target.Locality.InstanceID, experimentsDetails.Region); err != nil {
			return "", stacktrace.Propagate(err, "could not stop the backing instance")
		}
		common.SetTargets(target.Locality.InstanceID, "injected", "EC2", chaosDetails)
		return target.Locality.InstanceID, nil
	}
	return "", nil
}

// escalatesToCloud reports whether the kill also force-stops the backing
// instance. Only instant kills escalate, the reboot flavors leave the
// machine itself up.
func escalatesToCloud(experimentsDetails *experimentTypes.ExperimentDetails, mechanism topology.KillMechanism, target topology.Worker, killType topology.KillType) bool {
	return !mechanism.Simulated() && killType == topology.KillInstantly &&
		experimentsDetails.Region != "" && target.Locality.InstanceID != ""
}

// runChaosHooks occasionally arms a maintenance-flavored mutation alongside
// the kill, either a health-zone lease on the target's zone or a
// storage-failure grace window
func runChaosHooks(ctx context.Context, clients clients.ClientSets, target topology.Worker, report *experimentTypes.AttritionReport) error {
	rng := clients.Rng
	if rng.Float64() < 0.01 {
		duration := rng.DurationUpTo(20 * time.Second)
		log.Infof("[Chaos]: Marking zone %v healthy for %v", target.Locality.ZoneID, duration)
		return database.SetHealthyZone(ctx, clients.Database, target.Locality.ZoneID, duration)
	}
	if rng.Float64() < 0.005 {
		duration := rng.DurationUpTo(5 * time.Second)
		log.Infof("[Chaos]: Suppressing storage failure reactions for %v", duration)
		report.Grace = database.IgnoreStorageFailuresForDuration(clients.Database, duration)
		metrics.GraceWindowsTotal.Inc()
	}
	return nil
}

// chooseKillType draws the kill flavor for a round. A configured reboot pins
// it. Otherwise a third of the kills also drop the unit's data and the rest
// split evenly between instant kills and fault injection. Fault injection
// needs both the tunable and a simulated mechanism.
func chooseKillType(rng *random.Source, experimentsDetails *experimentTypes.ExperimentDetails, mechanism topology.KillMechanism) topology.KillType {
	if experimentsDetails.Reboot {
		return topology.Reboot
	}
	if rng.Float64() < 0.33 {
		return topology.RebootAndDelete
	}
	allowFaults := experimentsDetails.AllowFaultInjection && mechanism.Simulated()
	if rng.Float64() < 0.5 || !allowFaults {
		return topology.KillInstantly
	}
	return topology.InjectFaults
}

// enabledOn reports whether this client injects at all. Against the simulated
// cluster only the first client runs the attrition, live runs let every
// client work its own roster.
func enabledOn(experimentsDetails *experimentTypes.ExperimentDetails, mechanism topology.KillMechanism) bool {
	if mechanism.Simulated() {
		return experimentsDetails.ClientID == 0
	}
	return true
}

// meanKillDelay spreads the kill quota across the chaos duration
func meanKillDelay(experimentsDetails *experimentTypes.ExperimentDetails) time.Duration {
	if experimentsDetails.MachinesToKill < 1 {
		return time.Duration(experimentsDetails.ChaosDuration) * time.Second
	}
	return time.Duration(float64(experimentsDetails.ChaosDuration) / float64(experimentsDetails.MachinesToKill) * float64(time.Second))
}

// sleepFor sleeps for the given duration, false means the chaos duration ran
// out first
func sleepFor(ctx context.Context, duration time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// markTimedOut ends the run at the current suspension point, kills already
// dispatched stand
func markTimedOut(report *experimentTypes.AttritionReport) {
	report.Outcome = types.OutcomeTimedOut
	log.Info("[Chaos]: Chaos duration is over, stopping at the current suspension point")
}

// timedOutOr folds a context expiry into the timed-out outcome and treats
// everything else as a real failure
func timedOutOr(ctx context.Context, err error, report *experimentTypes.AttritionReport, message string) error {
	if ctx.Err() != nil {
		markTimedOut(report)
		return nil
	}
	return stacktrace.Propagate(err, message)
}

// abortWatcher continuously watch for the abort signals
func abortWatcher(experimentsDetails *experimentTypes.ExperimentDetails, clients clients.ClientSets, chaosDetails *types.ChaosDetails) {
	<-abort

	log.Info("[Abort]: Chaos Revert Started")
	// a health-zone lease outlives the process unless cleared here
	if err := database.ClearHealthyZone(context.Background(), clients.Database); err != nil {
		log.Errorf("unable to clear the healthy zone lease, err: %v", err)
	}
	for _, target := range chaosDetails.Targets {
		if target.Kind != "EC2" || target.ChaosStatus != "injected" {
			continue
		}
		instanceState, err := awslib.GetEC2InstanceStatus(target.Name, experimentsDetails.Region)
		if err != nil {
			log.Errorf("[Abort]: Failed to get instance status of %v when an abort signal is received, err: %v", target.Name, err)
			continue
		}
		if instanceState != "running" && instanceState != "pending" {
			log.Info("[Abort]: Waiting for the EC2 instance to get in stopped state")
			if err := awslib.WaitForEC2Down(experimentsDetails.Timeout, experimentsDetails.Delay, experimentsDetails.Region, target.Name); err != nil {
				log.Errorf("[Abort]: Unable to wait till stop of the instance, err: %v", err)
			}
			log.Info("[Abort]: Starting the EC2 instance as abort signal is received")
			if err := awslib.EC2Start(target.Name, experimentsDetails.Region); err != nil {
				log.Errorf("[Abort]: EC2 instance failed to start when an abort signal is received, err: %v", err)
				continue
			}
			log.Info("[Abort]: Wait for the EC2 instance to get in running state")
			if err := awslib.WaitForEC2Up(experimentsDetails.Timeout, experimentsDetails.Delay, experimentsDetails.Region, target.Name); err != nil {
				log.Errorf("[Abort]: Unable to wait till start of the instance, err: %v", err)
			}
		}
		common.SetTargets(target.Name, "reverted", "EC2", chaosDetails)
	}
	log.Info("[Abort]: Chaos Revert Completed")
	os.Exit(1)
}
