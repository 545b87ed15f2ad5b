package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/litmuschaos/attrition-go/pkg/cluster/database"
)

// controlPlaneFake serves the version and transaction endpoints, failing the
// first conflictCount commits with a conflict status.
type controlPlaneFake struct {
	mu            sync.Mutex
	server        *httptest.Server
	conflictCount int
	commits       []commitRequest
	lastVersionQP map[string]string
}

func newControlPlaneFake(t *testing.T, conflictCount int) *controlPlaneFake {
	t.Helper()
	fake := &controlPlaneFake{conflictCount: conflictCount}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/version", func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.lastVersionQP = map[string]string{}
		for key := range r.URL.Query() {
			fake.lastVersionQP[key] = r.URL.Query().Get(key)
		}
		fake.mu.Unlock()
		json.NewEncoder(w).Encode(versionResponse{Version: 7_000_000})
	})
	mux.HandleFunc("/v1/transaction", func(w http.ResponseWriter, r *http.Request) {
		var commit commitRequest
		if err := json.NewDecoder(r.Body).Decode(&commit); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		if fake.conflictCount > 0 {
			fake.conflictCount--
			http.Error(w, "conflict", http.StatusConflict)
			return
		}
		fake.commits = append(fake.commits, commit)
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *controlPlaneFake) landedCommits() []commitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]commitRequest, len(f.commits))
	copy(out, f.commits)
	return out
}

func TestGetReadVersionCarriesPriorityFlags(t *testing.T) {
	fake := newControlPlaneFake(t, 0)
	db := NewDatabase(NewClient(fake.server.URL))

	tx := db.Begin()
	tx.SetPrioritySystemImmediate()
	tx.SetLockAware()
	version, err := tx.GetReadVersion(context.Background())
	if err != nil {
		t.Fatalf("GetReadVersion() error = %v", err)
	}
	if version != 7_000_000 {
		t.Errorf("version = %d, want 7000000", version)
	}
	if fake.lastVersionQP["priority"] != "system_immediate" || fake.lastVersionQP["lock_aware"] != "true" {
		t.Errorf("flags not on the wire: %v", fake.lastVersionQP)
	}
}

func TestSetHealthyZoneRetriesConflicts(t *testing.T) {
	fake := newControlPlaneFake(t, 2)
	db := NewDatabase(NewClient(fake.server.URL))

	if err := database.SetHealthyZone(context.Background(), db, "rack-12", 30*time.Second); err != nil {
		t.Fatalf("SetHealthyZone() error = %v", err)
	}
	commits := fake.landedCommits()
	if len(commits) != 1 {
		t.Fatalf("expected exactly one landed commit, got %d", len(commits))
	}
	value, ok := commits[0].Set[database.HealthyZoneKey]
	if !ok {
		t.Fatalf("commit did not write the healthy zone key: %+v", commits[0])
	}
	zone, expiry, err := database.DecodeHealthyZone(value)
	if err != nil {
		t.Fatalf("DecodeHealthyZone() error = %v", err)
	}
	if zone != "rack-12" {
		t.Errorf("zone = %q, want rack-12", zone)
	}
	if want := int64(7_000_000 + 30*database.VersionsPerSecond); expiry != want {
		t.Errorf("expiry = %d, want %d", expiry, want)
	}
}

func TestClearHealthyZoneSendsClear(t *testing.T) {
	fake := newControlPlaneFake(t, 0)
	db := NewDatabase(NewClient(fake.server.URL))

	if err := database.ClearHealthyZone(context.Background(), db); err != nil {
		t.Fatalf("ClearHealthyZone() error = %v", err)
	}
	commits := fake.landedCommits()
	if len(commits) != 1 || len(commits[0].Clear) != 1 || commits[0].Clear[0] != database.HealthyZoneKey {
		t.Errorf("clear commit = %+v", commits)
	}
	if !commits[0].LockAware {
		t.Error("healthy zone maintenance must stay lock aware")
	}
}

func TestCommitPermanentRejectionStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/version" {
			json.NewEncoder(w).Encode(versionResponse{Version: 1})
			return
		}
		http.Error(w, "writes disabled", http.StatusUnprocessableEntity)
	}))
	defer server.Close()
	db := NewDatabase(NewClient(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.SetHealthyZone(ctx, db, "z0", time.Second); err == nil {
		t.Error("expected a permanent rejection to surface")
	}
}
