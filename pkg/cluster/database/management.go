package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/log"
)

const (
	// HealthyZoneKey is the cluster-wide singleton the failure detector reads.
	// While it names a zone with an unexpired lease, failures in that zone do
	// not trigger data movement.
	HealthyZoneKey = "\xff\x02/healthyZone"

	// IgnoreStorageFailuresZone is the marker zone id that widens the
	// exemption to every storage failure in the cluster
	IgnoreStorageFailuresZone = "IgnoreSSFailures"

	// VersionsPerSecond converts wall-clock lease durations into version space
	VersionsPerSecond = 1_000_000
)

// EncodeHealthyZone packs a zone id and its lease expiry version into the
// healthy-zone value
func EncodeHealthyZone(zoneID string, expiryVersion int64) string {
	return fmt.Sprintf("%s %d", zoneID, expiryVersion)
}

// DecodeHealthyZone unpacks a healthy-zone value
func DecodeHealthyZone(value string) (string, int64, error) {
	idx := strings.LastIndex(value, " ")
	if idx < 0 {
		return "", 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("malformed healthy zone value %q", value)}
	}
	expiry, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil {
		return "", 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: fmt.Sprintf("malformed healthy zone expiry in %q", value)}
	}
	return value[:idx], expiry, nil
}

// SetHealthyZone grants the zone a failure-detection exemption for the given
// duration. Transient commit failures are retried through the transaction
// gate's own classifier.
func SetHealthyZone(ctx context.Context, db Database, zoneID string, duration time.Duration) error {
	for {
		tx := db.Begin()
		tx.SetLockAware()
		version, err := tx.GetReadVersion(ctx)
		if err == nil {
			expiry := version + int64(duration.Seconds()*VersionsPerSecond)
			tx.Set(HealthyZoneKey, EncodeHealthyZone(zoneID, expiry))
			err = tx.Commit(ctx)
		}
		if err == nil {
			return nil
		}
		if err = tx.OnError(ctx, err); err != nil {
			return stacktrace.Propagate(err, "could not set healthy zone %v", zoneID)
		}
	}
}

// ClearHealthyZone drops the exemption. Clearing a key that was never set is
// a plain empty write, callers use this as an idempotent cleanup.
func ClearHealthyZone(ctx context.Context, db Database) error {
	for {
		tx := db.Begin()
		tx.SetLockAware()
		tx.Clear(HealthyZoneKey)
		err := tx.Commit(ctx)
		if err == nil {
			return nil
		}
		if err = tx.OnError(ctx, err); err != nil {
			return stacktrace.Propagate(err, "could not clear healthy zone")
		}
	}
}

// WaitForReadVersion blocks until the cluster hands out a read version, the
// pacing gate between kills. Retries indefinitely on transient errors.
func WaitForReadVersion(ctx context.Context, db Database) error {
	for {
		tx := db.Begin()
		tx.SetPrioritySystemImmediate()
		tx.SetLockAware()
		_, err := tx.GetReadVersion(ctx)
		if err == nil {
			return nil
		}
		if err = tx.OnError(ctx, err); err != nil {
			return stacktrace.Propagate(err, "could not obtain a read version")
		}
	}
}

// GraceWindow is one in-flight cluster-wide storage-failure suppression. The
// window keeps running when the attrition loop is cancelled, the clearing
// commit has to land so the cluster does not stay exempted after the run.
type GraceWindow struct {
	done chan struct{}
	err  error
}

// IgnoreStorageFailuresForDuration starts a grace window: it marks the whole
// cluster exempt, holds the exemption for the given duration and then clears
// it, retrying the clear until it commits.
func IgnoreStorageFailuresForDuration(db Database, duration time.Duration) *GraceWindow {
	window := &GraceWindow{done: make(chan struct{})}
	go func() {
		defer close(window.done)
		window.err = window.run(db, duration)
	}()
	return window
}

func (w *GraceWindow) run(db Database, duration time.Duration) error {
	ctx := context.Background()
	if err := SetHealthyZone(ctx, db, IgnoreStorageFailuresZone, 0); err != nil {
		return stacktrace.Propagate(err, "could not start the storage failure grace window")
	}
	time.Sleep(duration)
	log.Info("[Chaos]: Clearing the storage failure suppression")
	if err := ClearHealthyZone(ctx, db); err != nil {
		return stacktrace.Propagate(err, "could not end the storage failure grace window")
	}
	log.Info("[Chaos]: Storage failure suppression cleared")
	return nil
}

// Done closes once the window has fully resolved
func (w *GraceWindow) Done() <-chan struct{} {
	if w == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.done
}

// Resolved reports whether the window has run to completion
func (w *GraceWindow) Resolved() bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}

// Await blocks until the window resolves and returns its outcome. Windows are
// short by construction, their own duration bounds the wait.
func (w *GraceWindow) Await() error {
	if w == nil {
		return nil
	}
	<-w.done
	return w.err
}
