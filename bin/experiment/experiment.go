package main

import (
	"context"
	"errors"
	"flag"
	"os"

	machineAttrition "github.com/litmuschaos/attrition-go/experiments/cluster/machine-attrition/experiment"

	"github.com/litmuschaos/attrition-go/pkg/clients"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/metrics"
	"github.com/litmuschaos/attrition-go/pkg/telemetry"
	"github.com/litmuschaos/attrition-go/pkg/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {

	initCtx := context.Background()

	// Set up Observability.
	if otelExporterEndpoint := os.Getenv(utils.OTELExporterOTLPEndpoint); otelExporterEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(initCtx, true, otelExporterEndpoint)
		if err != nil {
			log.Errorf("Failed to initialize OTel SDK: %v", err)
			return
		}
		defer func() {
			err = errors.Join(err, shutdown(initCtx))
		}()
		initCtx = telemetry.GetTraceParentContext()
	}

	clients := clients.ClientSets{}

	ctx, span := otel.Tracer(telemetry.TracerName).Start(initCtx, "ExecuteExperiment")
	defer span.End()

	// parse the experiment name
	experimentName := flag.String("name", "machine-attrition", "name of the chaos experiment")
	flag.Parse()

	//Getting the cluster handles for the configured attrition mode
	if err := clients.GenerateClientSets(); err != nil {
		log.Errorf("Unable to generate the client sets, err: %v", err)
		return
	}

	if metricsAddr := os.Getenv("METRICS_ADDR"); metricsAddr != "" {
		metrics.Serve(metricsAddr)
	}

	log.Infof("Experiment Name: %v", *experimentName)

	// invoke the corresponding experiment based on the (-name) flag
	switch *experimentName {
	case "machine-attrition":
		machineAttrition.MachineAttrition(ctx, clients)
	default:
		log.Errorf("Unsupported -name %v, please provide the correct value of -name args", *experimentName)
	}
}
