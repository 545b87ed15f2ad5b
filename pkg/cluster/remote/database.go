package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
	"github.com/litmuschaos/attrition-go/pkg/log"
)

// Database implements the transaction gate against the control plane. Reads
// and writes are plain HTTP calls, the buffered transaction shape only exists
// so the healthy-zone operations run the same code in both modes.
type Database struct {
	client *Client
}

// NewDatabase returns the live-cluster side of database.Database
func NewDatabase(client *Client) *Database {
	return &Database{client: client}
}

// Begin implements database.Database
func (d *Database) Begin() database.Transaction {
	return &transaction{
		client: d.client,
		writes: map[string]*string{},
	}
}

type transaction struct {
	client          *Client
	systemImmediate bool
	lockAware       bool
	writes          map[string]*string
}

func (t *transaction) SetPrioritySystemImmediate() {
	t.systemImmediate = true
}

func (t *transaction) SetLockAware() {
	t.lockAware = true
}

type versionResponse struct {
	Version int64 `json:"version"`
}

func (t *transaction) GetReadVersion(ctx context.Context) (int64, error) {
	params := url.Values{}
	if t.systemImmediate {
		params.Set("priority", "system_immediate")
	}
	if t.lockAware {
		params.Set("lock_aware", "true")
	}
	path := "/v1/version"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var version versionResponse
	if err := t.client.getJSON(ctx, path, &version); err != nil {
		log.Warnf("read version unavailable: %v", err)
		return 0, errClusterUnavailable
	}
	return version.Version, nil
}

func (t *transaction) Set(key, value string) {
	v := value
	t.writes[key] = &v
}

func (t *transaction) Clear(key string) {
	t.writes[key] = nil
}

type commitRequest struct {
	LockAware bool              `json:"lock_aware"`
	Set       map[string]string `json:"set,omitempty"`
	Clear     []string          `json:"clear,omitempty"`
}

func (t *transaction) Commit(ctx context.Context) error {
	request := commitRequest{LockAware: t.lockAware}
	for key, value := range t.writes {
		if value == nil {
			request.Clear = append(request.Clear, key)
			continue
		}
		if request.Set == nil {
			request.Set = map[string]string{}
		}
		request.Set[key] = *value
	}
	status, err := t.client.postJSON(ctx, "/v1/transaction", request)
	switch {
	case err != nil:
		log.Warnf("commit did not reach the cluster: %v", err)
		return errClusterUnavailable
	case status == http.StatusOK:
		return nil
	case status == http.StatusConflict:
		return errCommitConflict
	case status >= 500:
		log.Warnf("commit bounced with status %v", status)
		return errClusterUnavailable
	default:
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "transaction rejected by the control plane", Target: http.StatusText(status)}
	}
}

// OnError backs off and retries the transient cluster conditions, everything
// else ends the caller's retry loop
func (t *transaction) OnError(ctx context.Context, err error) error {
	switch err {
	case errCommitConflict, errClusterUnavailable:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	default:
		return err
	}
}

var (
	errCommitConflict     = cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "transaction not committed due to conflict with another transaction"}
	errClusterUnavailable = cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "cluster unavailable, operation will be retried"}
)
