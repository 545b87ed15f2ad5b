package sidecar

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	apiv1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	clientTypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/telemetry"
	"github.com/litmuschaos/attrition-go/pkg/types"
	"github.com/litmuschaos/attrition-go/pkg/utils/retry"
)

const (
	// ConfigurationAnnotation carries the worker's active launch
	// configuration, the control plane scrapes it into the roster
	ConfigurationAnnotation = "attrition.litmuschaos.io/worker-configuration"

	// EnvironmentAnnotation carries the environment the worker was launched
	// with
	EnvironmentAnnotation = "attrition.litmuschaos.io/worker-environment"

	// OutdatedConfigAnnotation is set by the operator once the worker's
	// config map lags the desired generation, the value is a unix timestamp
	OutdatedConfigAnnotation = "attrition.litmuschaos.io/outdated-config-seen"

	// DelayShutdownAnnotation postpones the sidecar shutdown by the given
	// duration, e.g. "60s"
	DelayShutdownAnnotation = "attrition.litmuschaos.io/delay-shutdown"
)

// WorkerConfiguration is the launch configuration of the worker this sidecar
// runs beside
type WorkerConfiguration struct {
	BinaryPath  string            `json:"binary_path"`
	ProcessID   string            `json:"process_id"`
	ZoneID      string            `json:"zone_id"`
	MachineID   string            `json:"machine_id,omitempty"`
	DataHallID  string            `json:"data_hall_id,omitempty"`
	DcID        string            `json:"dc_id,omitempty"`
	Class       string            `json:"class,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// LoadConfiguration reads and validates the worker configuration file
func LoadConfiguration(configurationPath string) (WorkerConfiguration, error) {
	var configuration WorkerConfiguration
	raw, err := os.ReadFile(configurationPath)
	if err != nil {
		return configuration, errors.Wrapf(err, "Unable to read the worker configuration, err: %v", err)
	}
	if err := json.Unmarshal(raw, &configuration); err != nil {
		return configuration, errors.Wrapf(err, "Unable to decode the worker configuration, err: %v", err)
	}
	if configuration.ProcessID == "" || configuration.ZoneID == "" {
		return configuration, errors.Errorf("worker configuration at %v needs process_id and zone_id", configurationPath)
	}
	return configuration, nil
}

// PodClient watches the sidecar's own pod and republishes worker metadata on
// it. One instance serves one pod for the whole sidecar lifetime.
type PodClient struct {
	client    kubernetes.Interface
	namespace string
	podName   string

	lock        sync.Mutex
	annotations map[string]string

	// TimestampFeed receives the OutdatedConfigAnnotation value of every pod
	// update carrying one
	TimestampFeed chan int64
}

// NewPodClient builds the client for the pod named by POD_NAMESPACE/POD_NAME
// and seeds it with the pod's current metadata.
func NewPodClient(ctx context.Context, client kubernetes.Interface) (*PodClient, error) {
	podClient := &PodClient{
		client:        client,
		namespace:     types.Getenv("POD_NAMESPACE", "default"),
		podName:       types.Getenv("POD_NAME", ""),
		TimestampFeed: make(chan int64, 10),
	}
	if podClient.podName == "" {
		return nil, errors.Errorf("POD_NAME is not set, the sidecar needs the downward API")
	}
	pod, err := client.CoreV1().Pods(podClient.namespace).Get(ctx, podClient.podName, v1.GetOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to fetch the %v pod, err: %v", podClient.podName, err)
	}
	podClient.storeAnnotations(pod.Annotations)
	return podClient, nil
}

// Run keeps a field-scoped watch open on the pod and folds every update into
// the cached metadata. The API server ends watches routinely, the loop reopens
// them until ctx is done.
func (podClient *PodClient) Run(ctx context.Context) error {
	selector := fields.OneTermEqualSelector("metadata.name", podClient.podName).String()
	for {
		watcher, err := podClient.client.CoreV1().Pods(podClient.namespace).Watch(ctx, v1.ListOptions{FieldSelector: selector})
		if err != nil {
			log.Errorf("Unable to watch the %v pod, retrying, err: %v", podClient.podName, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		podClient.consume(ctx, watcher)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (podClient *PodClient) consume(ctx context.Context, watcher watch.Interface) {
	defer watcher.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return
			}
			podClient.handle(event)
		}
	}
}

func (podClient *PodClient) handle(event watch.Event) {
	pod, ok := event.Object.(*apiv1.Pod)
	if !ok {
		return
	}
	switch event.Type {
	case watch.Added, watch.Modified:
		podClient.storeAnnotations(pod.Annotations)
		podClient.feedOutdatedTimestamp(pod.Annotations[OutdatedConfigAnnotation])
	case watch.Deleted:
		podClient.storeAnnotations(nil)
	}
}

func (podClient *PodClient) storeAnnotations(annotations map[string]string) {
	copied := make(map[string]string, len(annotations))
	for key, value := range annotations {
		copied[key] = value
	}
	podClient.lock.Lock()
	podClient.annotations = copied
	podClient.lock.Unlock()
}

// feedOutdatedTimestamp relays the outdated-config marker. Re-lists replay an
// unchanged marker, consumers have to treat repeats as no-ops.
func (podClient *PodClient) feedOutdatedTimestamp(raw string) {
	if raw == "" {
		return
	}
	timestamp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Errorf("Unable to parse the %v annotation value %v, err: %v", OutdatedConfigAnnotation, raw, err)
		return
	}
	podClient.TimestampFeed <- timestamp
}

// UpdateAnnotations republishes the worker's configuration and environment on
// the pod, annotations of other owners stay untouched.
func (podClient *PodClient) UpdateAnnotations(ctx context.Context, configuration WorkerConfiguration) error {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "UpdateWorkerAnnotations")
	defer span.End()

	rawConfiguration, err := json.Marshal(configuration)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode the worker configuration, err: %v", err)
	}
	environment := map[string]string{}
	for key, value := range configuration.Environment {
		environment[key] = value
	}
	environment["BINARY_DIR"] = path.Dir(configuration.BinaryPath)
	rawEnvironment, err := json.Marshal(environment)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode the worker environment, err: %v", err)
	}
	return podClient.patchAnnotations(ctx, map[string]string{
		ConfigurationAnnotation: string(rawConfiguration),
		EnvironmentAnnotation:   string(rawEnvironment),
	})
}

func (podClient *PodClient) patchAnnotations(ctx context.Context, changes map[string]string) error {
	mergePatch, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": changes,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "Unable to encode the annotation patch, err: %v", err)
	}
	return retry.
		Times(5).
		Wait(2 * time.Second).
		Try(func(attempt uint) error {
			_, err := podClient.client.CoreV1().Pods(podClient.namespace).Patch(ctx, podClient.podName, clientTypes.MergePatchType, mergePatch, v1.PatchOptions{})
			if err != nil {
				return errors.Wrapf(err, "Unable to patch the %v pod annotations, err: %v", podClient.podName, err)
			}
			return nil
		})
}

// ShutdownDelay reads the delay-shutdown annotation an operator may have put
// on the pod, zero when absent or malformed.
func (podClient *PodClient) ShutdownDelay() time.Duration {
	podClient.lock.Lock()
	raw := podClient.annotations[DelayShutdownAnnotation]
	podClient.lock.Unlock()
	if raw == "" {
		return 0
	}
	delay, err := time.ParseDuration(raw)
	if err != nil {
		log.Errorf("Unable to parse the %v annotation value %v, err: %v", DelayShutdownAnnotation, raw, err)
		return 0
	}
	return delay
}
