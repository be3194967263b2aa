// Package checkpoint persists per-database migration progress so a failed
// multi-hour run resumes instead of restarting. Progress is only ever reused
// when the run identity (endpoints, scope fingerprint, destructive flags)
// matches exactly; stale scope decisions must never apply to a new run.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// SchemaVersion is bumped whenever the file layout changes; older files then
// fail identity matching and the run starts fresh.
const SchemaVersion = 1

// DefaultDir is the fixed relative directory holding the checkpoint file.
const DefaultDir = ".pgshift"

const fileName = "checkpoint.json"

// Identity pins a checkpoint to one exact run configuration. Any difference
// invalidates stored progress.
type Identity struct {
	SourceHash   string
	TargetHash   string
	Fingerprint  string
	DropExisting bool
	EnableSync   bool
}

// Checkpoint is the durable record of one run.
type Checkpoint struct {
	SchemaVersion      int      `json:"schema_version"`
	SourceEndpointHash string   `json:"source_endpoint_hash"`
	TargetEndpointHash string   `json:"target_endpoint_hash"`
	FilterFingerprint  string   `json:"filter_fingerprint"`
	DropExisting       bool     `json:"drop_existing"`
	EnableSync         bool     `json:"enable_sync"`
	TotalDatabases     []string `json:"total_databases"`
	CompletedDatabases []string `json:"completed_databases"`
}

func (c *Checkpoint) identity() Identity {
	return Identity{
		SourceHash:   c.SourceEndpointHash,
		TargetHash:   c.TargetEndpointHash,
		Fingerprint:  c.FilterFingerprint,
		DropExisting: c.DropExisting,
		EnableSync:   c.EnableSync,
	}
}

// Store reads and writes the checkpoint file. Single writer assumed; the only
// concurrency guard is the atomic write-then-rename replace, which ensures a
// crash never leaves a truncated file mistaken for valid state.
type Store struct {
	fs  afero.Fs
	dir string
	log *zap.Logger
}

func NewStore(fs afero.Fs, dir string, log *zap.Logger) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{fs: fs, dir: dir, log: log.Named("checkpoint")}
}

func (s *Store) path() string { return filepath.Join(s.dir, fileName) }

// Load reads the stored checkpoint. A missing, corrupt or structurally
// invalid file is reported as absent, never as a failure.
func (s *Store) Load() (*Checkpoint, bool) {
	data, err := afero.ReadFile(s.fs, s.path())
	if err != nil {
		return nil, false
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.log.Warn("checkpoint file is corrupt, treating as absent",
			zap.String("path", s.path()),
			zap.Error(err),
		)
		return nil, false
	}
	if cp.SchemaVersion != SchemaVersion {
		s.log.Warn("checkpoint schema version mismatch, treating as absent",
			zap.Int("found", cp.SchemaVersion),
			zap.Int("want", SchemaVersion),
		)
		return nil, false
	}
	return &cp, true
}

// Begin resolves the starting state of a run. A stored checkpoint whose
// identity matches is resumed; otherwise (absent, different identity, or
// fresh forced) a new checkpoint over databases is created and persisted.
func (s *Store) Begin(id Identity, databases []string, fresh bool) (*Run, error) {
	if !fresh {
		if cp, ok := s.Load(); ok {
			if cp.identity() == id {
				s.log.Info("resuming from checkpoint",
					zap.Int("total", len(cp.TotalDatabases)),
					zap.Int("completed", len(cp.CompletedDatabases)),
				)
				return &Run{store: s, cp: cp, resumed: true}, nil
			}
			s.log.Info("stored checkpoint identity differs, starting fresh")
		}
	}

	cp := &Checkpoint{
		SchemaVersion:      SchemaVersion,
		SourceEndpointHash: id.SourceHash,
		TargetEndpointHash: id.TargetHash,
		FilterFingerprint:  id.Fingerprint,
		DropExisting:       id.DropExisting,
		EnableSync:         id.EnableSync,
		TotalDatabases:     databases,
		CompletedDatabases: []string{},
	}
	if err := s.persist(cp); err != nil {
		return nil, err
	}
	return &Run{store: s, cp: cp}, nil
}

func (s *Store) persist(cp *Checkpoint) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (s *Store) remove() error {
	if err := s.fs.Remove(s.path()); err != nil {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Run is the active checkpoint of one invocation.
type Run struct {
	store   *Store
	cp      *Checkpoint
	resumed bool
}

// Resumed reports whether stored progress was reused.
func (r *Run) Resumed() bool { return r.resumed }

// Total lists every database of the run in its original order.
func (r *Run) Total() []string { return append([]string(nil), r.cp.TotalDatabases...) }

// Completed lists databases already done, in completion order.
func (r *Run) Completed() []string { return append([]string(nil), r.cp.CompletedDatabases...) }

// Remaining returns total minus completed, preserving the original ordering.
func (r *Run) Remaining() []string {
	done := mapset.NewThreadUnsafeSet(r.cp.CompletedDatabases...)
	remaining := make([]string, 0, len(r.cp.TotalDatabases))
	for _, db := range r.cp.TotalDatabases {
		if !done.Contains(db) {
			remaining = append(remaining, db)
		}
	}
	return remaining
}

// Complete records that a database's workflow fully succeeded and persists
// immediately. A crash after this point never re-does that database.
func (r *Run) Complete(db string) error {
	for _, done := range r.cp.CompletedDatabases {
		if done == db {
			return nil
		}
	}
	r.cp.CompletedDatabases = append(r.cp.CompletedDatabases, db)
	if err := r.store.persist(r.cp); err != nil {
		return err
	}
	r.store.log.Info("database completed",
		zap.String("database", db),
		zap.Int("completed", len(r.cp.CompletedDatabases)),
		zap.Int("total", len(r.cp.TotalDatabases)),
	)
	return nil
}

// Finish deletes the checkpoint file once nothing remains.
func (r *Run) Finish() error {
	if len(r.Remaining()) != 0 {
		return fmt.Errorf("finish called with %d databases remaining", len(r.Remaining()))
	}
	return r.store.remove()
}
