package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
)

// Database is the simulated coordination layer: a version clock and a small
// key-value store behind the transaction gate. Transient commit failures and
// a locked state can be injected to exercise retry paths.
type Database struct {
	mu              sync.Mutex
	start           time.Time
	kv              map[string]string
	locked          bool
	pendingFailures int
}

// NewDatabase returns an empty store with the version clock running
func NewDatabase() *Database {
	return &Database{
		start: time.Now(),
		kv:    map[string]string{},
	}
}

// FailNextCommits makes the next n commits fail with a retryable error
func (d *Database) FailNextCommits(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingFailures = n
}

// SetLocked flips the database lock. Only lock-aware transactions get through
// while it is held.
func (d *Database) SetLocked(locked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = locked
}

// Value reads a key outside any transaction
func (d *Database) Value(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.kv[key]
	return v, ok
}

// Begin implements database.Database
func (d *Database) Begin() database.Transaction {
	return &transaction{
		db:     d,
		writes: map[string]*string{},
	}
}

func (d *Database) version() int64 {
	return int64(time.Since(d.start).Seconds() * database.VersionsPerSecond)
}

type transaction struct {
	db              *Database
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

func (t *transaction) GetReadVersion(ctx context.Context) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.locked && !t.lockAware {
		return 0, errDatabaseLocked
	}
	return t.db.version(), nil
}

func (t *transaction) Set(key, value string) {
	v := value
	t.writes[key] = &v
}

func (t *transaction) Clear(key string) {
	t.writes[key] = nil
}

func (t *transaction) Commit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.locked && !t.lockAware {
		return errDatabaseLocked
	}
	if t.db.pendingFailures > 0 {
		t.db.pendingFailures--
		return errCommitConflict
	}
	for key, value := range t.writes {
		if value == nil {
			delete(t.db.kv, key)
		} else {
			t.db.kv[key] = *value
		}
	}
	return nil
}

// OnError backs off briefly for retryable errors, anything else ends the
// retry loop
func (t *transaction) OnError(ctx context.Context, err error) error {
	switch err {
	case errCommitConflict, errDatabaseLocked:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
			return nil
		}
	default:
		return err
	}
}

var (
	errCommitConflict = cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "transaction not committed due to conflict with another transaction"}
	errDatabaseLocked = cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Reason: "database is locked"}
)
