package environment

import (
	"fmt"
	"os"
	"strconv"

	"github.com/palantir/stacktrace"
	"gopkg.in/yaml.v2"
	clientTypes "k8s.io/apimachinery/pkg/types"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	experimentTypes "github.com/litmuschaos/attrition-go/pkg/cluster/machine-attrition/types"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/random"
)

// Options is the workload tunable block of an options file. Every field is a
// pointer so an absent key stays distinguishable from a zero value.
type Options struct {
	MachinesToKill      *int    `yaml:"machinesToKill"`
	MachinesToLeave     *int    `yaml:"machinesToLeave"`
	TestDuration        *int    `yaml:"testDuration"`
	SuspendDuration     *int    `yaml:"suspendDuration"`
	Reboot              *bool   `yaml:"reboot"`
	KillDc              *bool   `yaml:"killDc"`
	KillMachine         *bool   `yaml:"killMachine"`
	KillDatahall        *bool   `yaml:"killDatahall"`
	KillProcess         *bool   `yaml:"killProcess"`
	KillSelf            *bool   `yaml:"killSelf"`
	TargetID            *string `yaml:"targetId"`
	Replacement         *bool   `yaml:"replacement"`
	WaitForVersion      *bool   `yaml:"waitForVersion"`
	AllowFaultInjection *bool   `yaml:"allowFaultInjection"`
}

// GetENV fetches all the env variables from the runner pod. Workload tunables
// resolve env first, then the options file, then the built-in defaults; the
// killDc and replacement defaults are random draws, so the run's generator is
// built here and returned for the attrition loop to keep using.
func GetENV(experimentDetails *experimentTypes.ExperimentDetails) (*random.Source, error) {
	options, err := loadOptions(types.Getenv("OPTIONS_FILE", ""))
	if err != nil {
		return nil, err
	}

	experimentDetails.ExperimentName = types.Getenv("EXPERIMENT_NAME", "machine-attrition")
	experimentDetails.EngineName = types.Getenv("CHAOSENGINE", "")
	experimentDetails.RampTime, _ = strconv.Atoi(types.Getenv("RAMP_TIME", "0"))
	experimentDetails.ChaosUID = clientTypes.UID(types.Getenv("CHAOS_UID", ""))
	experimentDetails.InstanceID = types.Getenv("INSTANCE_ID", "")
	experimentDetails.Delay, _ = strconv.Atoi(types.Getenv("STATUS_CHECK_DELAY", "2"))
	experimentDetails.Timeout, _ = strconv.Atoi(types.Getenv("STATUS_CHECK_TIMEOUT", "180"))
	experimentDetails.Sequence = types.Getenv("SEQUENCE", "parallel")
	experimentDetails.Region = types.Getenv("REGION", "")
	experimentDetails.ClientID, _ = strconv.Atoi(types.Getenv("CLIENT_ID", "0"))
	experimentDetails.ClientCount, _ = strconv.Atoi(types.Getenv("CLIENT_COUNT", "1"))

	rng := newSource()

	experimentDetails.ChaosDuration = intFrom("TOTAL_CHAOS_DURATION", options.TestDuration, 10)
	experimentDetails.MachinesToKill = intFrom("MACHINES_TO_KILL", options.MachinesToKill, 2)
	experimentDetails.MachinesToLeave = intFrom("MACHINES_TO_LEAVE", options.MachinesToLeave, 1)
	experimentDetails.SuspendDuration = intFrom("SUSPEND_DURATION", options.SuspendDuration, 1)
	experimentDetails.Reboot = boolFrom("REBOOT", options.Reboot, func() bool { return false })
	experimentDetails.KillDc = boolFrom("KILL_DC", options.KillDc, func() bool { return rng.Float64() < 0.25 })
	experimentDetails.KillMachine = boolFrom("KILL_MACHINE", options.KillMachine, func() bool { return false })
	experimentDetails.KillDatahall = boolFrom("KILL_DATAHALL", options.KillDatahall, func() bool { return false })
	experimentDetails.KillProcess = boolFrom("KILL_PROCESS", options.KillProcess, func() bool { return false })
	experimentDetails.KillSelf = boolFrom("KILL_SELF", options.KillSelf, func() bool { return false })
	experimentDetails.TargetID = stringFrom("TARGET_ID", options.TargetID, "")
	experimentDetails.Replacement = boolFrom("REPLACEMENT", options.Replacement,
		func() bool { return experimentDetails.Reboot && rng.Float64() < 0.5 })
	experimentDetails.WaitForVersion = boolFrom("WAIT_FOR_VERSION", options.WaitForVersion, func() bool { return false })
	experimentDetails.AllowFaultInjection = boolFrom("ALLOW_FAULT_INJECTION", options.AllowFaultInjection, func() bool { return true })

	return rng, nil
}

// newSource builds the run's generator, seeded from RANDOM_SEED when the
// orchestrator wants a reproducible run
func newSource() *random.Source {
	if value := types.Getenv("RANDOM_SEED", ""); value != "" {
		if seed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return random.NewSource(seed)
		}
	}
	return random.TimeSeeded()
}

// loadOptions reads the options file named by path, an empty path means no
// file-level overrides
func loadOptions(path string) (Options, error) {
	var options Options
	if path == "" {
		return options, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return options, stacktrace.Propagate(
			cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: err.Error(), Target: path},
			"could not read the options file")
	}
	if err := yaml.UnmarshalStrict(data, &options); err != nil {
		return options, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Reason:    fmt.Sprintf("could not parse the options file: %v", err),
			Target:    path,
		}
	}
	return options, nil
}

func intFrom(key string, fileValue *int, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return fallback
}

func boolFrom(key string, fileValue *bool, fallback func() bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return fallback()
}

func stringFrom(key string, fileValue *string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != nil {
		return *fileValue
	}
	return fallback
}
