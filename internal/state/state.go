// Package state implements the StateStore of the Data Model's persisted
// entities: it snapshots the Risk Ledger, Suppression Chain (direction
// locks, cooldowns, dedup window, daily counters), Basket Aggregator
// (windows, ETF locks), and the rate limiter's token buckets to a JSON file on an interval and on shutdown, and
// reloads them on startup. Grounded on the teacher's saveState/
// saveStateFrom/loadState (trader.go): build a snapshot under a read lock,
// marshal it indented, write to a temp file, then atomically rename over
// the real path — generalized from the teacher's single BotState struct
// to one snapshot struct per stateful collaborator.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/sigpipe/internal/basket"
	"github.com/example/sigpipe/internal/ratelimit"
	"github.com/example/sigpipe/internal/risk"
	"github.com/example/sigpipe/internal/suppress"
)

// Snapshot is the full persisted state of a running pipeline instance.
type Snapshot struct {
	SchemaVersion int                   `json:"schema_version"`
	SavedAt       time.Time             `json:"saved_at"`
	Ledger        risk.Ledger           `json:"ledger"`
	Suppression   suppress.Snapshot     `json:"suppression"`
	Baskets       basket.Snapshot       `json:"baskets"`
	Buckets       []ratelimit.Snapshot  `json:"buckets"`
}

// CurrentSchemaVersion is bumped whenever Snapshot's shape changes in a
// way old files can't be read as-is; cmd/statemigrate rewrites older
// files up to this version.
const CurrentSchemaVersion = 1

// Store persists and rehydrates a Snapshot to/from a JSON file, mirroring
// the teacher's stateFile/PersistState gating: an empty path disables
// persistence entirely rather than erroring.
type Store struct {
	path string
}

// New constructs a Store. If path is empty, Save and Load are no-ops,
// exactly as the teacher's saveState short-circuits when stateFile == "".
func New(path string) *Store {
	return &Store{path: path}
}

// Save builds a snapshot from the four collaborators and writes it to a
// temp file before renaming it over the real path, so a crash mid-write
// never corrupts the previous good state.
func (s *Store) Save(riskMgr *risk.Manager, chain *suppress.Chain, agg *basket.Aggregator, limiter *ratelimit.Limiter) error {
	if s.path == "" {
		return nil
	}
	snap := Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       time.Now(),
		Ledger:        riskMgr.Snapshot(),
		Suppression:   chain.Snapshot(),
		Baskets:       agg.Snapshot(),
		Buckets:       limiter.Save(),
	}
	bs, err := json.MarshalIndent(snap, "", " ")
	if err != nil {
		return fmt.Errorf("marshal state snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads the persisted snapshot and rehydrates the four
// collaborators in place. A missing file is not an error — it is the
// expected first-boot condition — and leaves the collaborators at their
// zero-value starting state.
func (s *Store) Load(riskMgr *risk.Manager, chain *suppress.Chain, agg *basket.Aggregator, limiter *ratelimit.Limiter) error {
	if s.path == "" {
		return nil
	}
	bs, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(bs, &snap); err != nil {
		return fmt.Errorf("unmarshal state file: %w", err)
	}
	if snap.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("state file schema version %d does not match current %d; run statemigrate", snap.SchemaVersion, CurrentSchemaVersion)
	}
	riskMgr.Restore(snap.Ledger)
	chain.Restore(snap.Suppression)
	agg.Restore(snap.Baskets)
	limiter.Restore(snap.Buckets)
	return nil
}

// RunPeriodicSave calls Save every interval until stop is closed, in the
// teacher's style of a small ticking background goroutine rather than a
// dedicated scheduler abstraction. Callers should also call Save once more
// on shutdown to capture state past the last tick.
func (s *Store) RunPeriodicSave(stop <-chan struct{}, interval time.Duration, riskMgr *risk.Manager, chain *suppress.Chain, agg *basket.Aggregator, limiter *ratelimit.Limiter, onErr func(error)) {
	if s.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Save(riskMgr, chain, agg, limiter); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
