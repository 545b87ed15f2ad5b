package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Uncomment to load all auth plugins
	// _ "k8s.io/client-go/plugin/pkg/client/auth"
	//
	// Or uncomment to load specific auth plugins
	// _ "k8s.io/client-go/plugin/pkg/client/auth/azure"
	// _ "k8s.io/client-go/plugin/pkg/client/auth/gcp"
	// _ "k8s.io/client-go/plugin/pkg/client/auth/oidc"

	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/sidecar"
	"github.com/litmuschaos/attrition-go/pkg/telemetry"
	"github.com/litmuschaos/attrition-go/pkg/utils"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
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
		shutdown, err := telemetry.InitOTelSDK(initCtx, false, otelExporterEndpoint)
		if err != nil {
			log.Errorf("Failed to initialize OTel SDK: %v", err)
			return
		}
		defer func() {
			err = errors.Join(err, shutdown(initCtx))
		}()
	}

	kubeconfig := flag.String("kubeconfig", "", "absolute path to the kubeconfig file")
	configurationFile := flag.String("configuration-file", "/var/run/attrition/worker.json", "path to the worker configuration file")
	flag.Parse()

	// It uses in-cluster config, if kubeconfig path is not specified
	config, err := clientcmd.BuildConfigFromFlags("", *kubeconfig)
	if err != nil {
		log.Errorf("Unable to Get the kubeconfig, err: %v", err)
		return
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		log.Errorf("Unable to generate kubernetes clientSet, err: %v", err)
		return
	}

	configuration, err := sidecar.LoadConfiguration(*configurationFile)
	if err != nil {
		log.Errorf("Unable to load the worker configuration, err: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(initCtx)
	defer cancel()

	podClient, err := sidecar.NewPodClient(ctx, clientset)
	if err != nil {
		log.Errorf("Unable to set up the pod client, err: %v", err)
		return
	}

	go func() {
		if err := podClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("The pod watch ended, err: %v", err)
		}
	}()

	if err := podClient.UpdateAnnotations(ctx, configuration); err != nil {
		log.Errorf("Unable to publish the worker metadata, err: %v", err)
		return
	}
	log.Infof("[Info]: Published the metadata of worker %v in zone %v", configuration.ProcessID, configuration.ZoneID)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case timestamp := <-podClient.TimestampFeed:
			log.Infof("[Info]: The worker configuration went stale at %v, republishing", timestamp)
			configuration, err = sidecar.LoadConfiguration(*configurationFile)
			if err != nil {
				log.Errorf("Unable to reload the worker configuration, err: %v", err)
				continue
			}
			if err := podClient.UpdateAnnotations(ctx, configuration); err != nil {
				log.Errorf("Unable to republish the worker metadata, err: %v", err)
			}
		case <-signals:
			if delay := podClient.ShutdownDelay(); delay > 0 {
				log.Infof("[Info]: Delaying the shutdown by %v", delay)
				time.Sleep(delay)
			}
			log.Info("[The End]: The sidecar is shutting down")
			return
		}
	}
}
