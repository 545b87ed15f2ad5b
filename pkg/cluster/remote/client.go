package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cluster/topology"
	"github.com/litmuschaos/attrition-go/pkg/log"
)

// Client talks to the control plane of a live cluster. The control plane
// serves the worker roster and hands out read versions, reboot requests go
// straight to each worker's own admin address.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for the given control-plane endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type workerRecord struct {
	ProcessID  string `json:"process_id"`
	ZoneID     string `json:"zone_id"`
	MachineID  string `json:"machine_id"`
	DataHallID string `json:"data_hall_id"`
	DcID       string `json:"dc_id"`
	Class      string `json:"class"`
	Address    string `json:"address"`
	InstanceID string `json:"instance_id,omitempty"`
}

type workersResponse struct {
	Workers []workerRecord `json:"workers"`
}

// Workers implements topology.Roster against the control plane. Harness
// processes never make it into the candidate pool.
func (c *Client) Workers(ctx context.Context) ([]topology.Worker, error) {
	var listed workersResponse
	if err := c.getJSON(ctx, "/v1/workers", &listed); err != nil {
		return nil, err
	}
	workers := make([]topology.Worker, 0, len(listed.Workers))
	for _, record := range listed.Workers {
		class := topology.ProcessClass(record.Class)
		if class == topology.ClassTester {
			continue
		}
		workers = append(workers, topology.Worker{
			Locality: topology.Locality{
				ProcessID:  record.ProcessID,
				ZoneID:     record.ZoneID,
				MachineID:  record.MachineID,
				DataHallID: record.DataHallID,
				DcID:       record.DcID,
				Address:    record.Address,
				InstanceID: record.InstanceID,
			},
			Class: class,
		})
	}
	return workers, nil
}

// RebootRequest is the worker admin call behind every live kill. A worker
// receiving it shuts down and stays down for WaitForDuration seconds,
// RebootWaitForever means it is not coming back on its own.
type RebootRequest struct {
	WaitForDuration uint32 `json:"wait_for_duration"`
	DeleteData      bool   `json:"delete_data"`
}

// RebootWaitForever keeps a rebooted worker down until an operator or the
// orchestration layer replaces it
const RebootWaitForever uint32 = 1<<32 - 1

// RequestReboot delivers a reboot request to the worker's admin address. The
// send is fire-and-forget: the worker acknowledges receipt and goes down on
// its own schedule, nobody waits for the shutdown.
func (c *Client) RequestReboot(ctx context.Context, address string, request RebootRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: address, Reason: fmt.Sprintf("could not encode reboot request: %v", err)}
	}
	url := fmt.Sprintf("http://%s/v1/admin/reboot", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: address, Reason: fmt.Sprintf("could not build reboot request: %v", err)}
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: address, Reason: fmt.Sprintf("reboot request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: address, Reason: fmt.Sprintf("reboot request rejected with %v", resp.Status)}
	}
	log.Infof("[Chaos]: Reboot request accepted by %v", address)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRosterFetch, Reason: fmt.Sprintf("could not build control plane request: %v", err)}
	}
	req.Header.Add("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRosterFetch, Reason: fmt.Sprintf("control plane unreachable: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRosterFetch, Reason: fmt.Sprintf("control plane returned %v for %v", resp.Status, path)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeRosterFetch, Reason: fmt.Sprintf("could not decode control plane response: %v", err)}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in interface{}) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("could not encode control plane request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewBuffer(body))
	if err != nil {
		return 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("could not build control plane request: %v", err)}
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
