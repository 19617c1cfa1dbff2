// Package store holds the in-memory task list and coordinates its
// persistence.
//
// A single mutex guards the ordered record slice. Every exported method
// takes it once; helpers ending in Locked expect it held. Mutations change
// memory, release the lock, then ask the durability worker for a save, so
// callers never wait on disk. Records handed out are always deep copies.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/internal/durability"
	"github.com/mesh-intelligence/taskpad/internal/preserve"
	"github.com/mesh-intelligence/taskpad/internal/recovery"
	"github.com/mesh-intelligence/taskpad/internal/sqlite"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// Store is the record collection. Create it with Open and release it with
// Shutdown.
type Store struct {
	mu       sync.Mutex
	records  []types.Record // records[i].Position == i
	closed   bool
	gen      uint64
	inflight sync.WaitGroup

	cfg       types.Config
	logger    *log.Logger
	merger    *preserve.Merger
	observers *durability.Observers
	backups   *durability.Backups
	worker    *durability.Worker

	recovered   recovery.Result
	recoveryErr error

	indexMu     sync.Mutex // guards index and indexClosed
	index       *sqlite.Index
	indexClosed bool
}

// Open loads the collection from cfg's data file, falling back to backups
// when it is corrupt, and starts the background save loop. It fails only
// for an invalid config or an unusable data directory; when no valid data
// can be recovered the store starts empty and the *types.RecoveryError is
// passed to error handlers and kept for RecoveryErr.
func Open(cfg types.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	s := &Store{
		cfg:       cfg,
		logger:    logger,
		merger:    preserve.New(logger),
		observers: durability.NewObservers(logger),
		backups:   durability.NewBackups(cfg.Path(), cfg.BackupDir(), cfg.BackupRetention, logger),
	}
	for _, fn := range o.onError {
		s.observers.OnError(fn)
	}
	for _, fn := range o.onSaveSuccess {
		s.observers.OnSaveSuccess(fn)
	}

	loader := recovery.NewLoader(cfg.Path(), s.backups, cfg.RecoveryCandidates, logger)
	res, err := loader.Load(context.Background())
	s.records = res.Records
	s.recovered = res
	if err != nil {
		s.recoveryErr = err
		s.observers.NotifyError(err)
	}

	writer := durability.NewWriter(cfg.Path(), s.backups, cfg.SaveRetries, cfg.RetryDelay, logger)
	s.worker = durability.NewWorker(writer, s.snapshot, cfg.SaveDebounce, s.observers, logger)
	s.worker.Start()

	// Rewrite the primary file when what was loaded differs from it.
	if res.Source == recovery.SourceBackup || len(res.Repaired) > 0 || len(res.Dropped) > 0 {
		s.mu.Lock()
		s.changedLocked()
		s.mu.Unlock()
		s.requestSave()
	}

	logger.WithFields(log.Fields{
		"path":    cfg.Path(),
		"records": len(s.records),
		"source":  res.Source,
	}).Debug("store opened")
	return s, nil
}

// Recovery returns the startup load report.
func (s *Store) Recovery() recovery.Result {
	return s.recovered
}

// RecoveryErr returns the *types.RecoveryError from startup, or nil.
func (s *Store) RecoveryErr() error {
	return s.recoveryErr
}

// Path returns the primary data file path.
func (s *Store) Path() string {
	return s.cfg.Path()
}

// OnSaveSuccess registers fn to run after each successful write.
func (s *Store) OnSaveSuccess(fn func()) {
	s.observers.OnSaveSuccess(fn)
}

// OnError registers fn to receive persistence errors.
func (s *Store) OnError(fn func(error)) {
	s.observers.OnError(fn)
}

// Create adds a record with the given text and optional fields at the end
// of the list. Returns a *types.ValidationError for empty or oversized
// text or a malformed extension field.
func (s *Store) Create(text string, ext types.Extensions) (types.Record, error) {
	text, err := types.NormalizeText(text)
	if err != nil {
		return types.Record{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.Record{}, types.ErrClosed
	}

	base := types.Record{ID: s.newIDLocked(), Text: text, CreatedAt: types.Now()}
	res, err := s.merger.Merge(base, ext.Updates())
	if err != nil {
		s.mu.Unlock()
		return types.Record{}, err
	}
	rec := res.Record
	rec.Position = len(s.records)
	s.records = append(s.records, rec)
	out := rec.Clone()
	s.changedLocked()
	s.mu.Unlock()

	s.requestSave()
	return out, nil
}

// Read returns the records matching filter in position order.
func (s *Store) Read(filter types.Filter) []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Record, 0, len(s.records))
	for _, r := range s.records {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Get returns the record with the given id.
// Returns types.ErrNotFound if no record has that id.
func (s *Store) Get(id string) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		return types.Record{}, types.NotFound(id)
	}
	return s.records[i].Clone(), nil
}

// Update merges updates into the record with the given id and stamps
// modified_at. Fields not named in updates keep their values.
// Returns types.ErrNotFound for an unknown id and a *types.ValidationError
// for a rejected value; the record is unchanged in both cases.
func (s *Store) Update(id string, updates types.Updates) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrClosed
	}
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return types.NotFound(id)
	}

	res, err := s.merger.Merge(s.records[i], updates)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(res.Applied) == 0 && len(res.Repaired) == 0 {
		s.mu.Unlock()
		return nil
	}
	rec := res.Record
	now := types.Now()
	rec.ModifiedAt = &now
	rec.Position = i
	s.records[i] = rec
	s.changedLocked()
	s.mu.Unlock()

	s.requestSave()
	return nil
}

// Delete removes the record with the given id and closes the gap in
// positions. Returns types.ErrNotFound for an unknown id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrClosed
	}
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return types.NotFound(id)
	}
	s.records = slices.Delete(s.records, i, i+1)
	s.reindexLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.requestSave()
	return nil
}

// Reorder moves the record with the given id to newPosition, clamped to
// the last position. Returns types.ErrInvalidArgument for a negative
// position and types.ErrNotFound for an unknown id.
func (s *Store) Reorder(id string, newPosition int) error {
	if newPosition < 0 {
		return fmt.Errorf("%w: position %d is negative", types.ErrInvalidArgument, newPosition)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrClosed
	}
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return types.NotFound(id)
	}
	newPosition = min(newPosition, len(s.records)-1)
	if newPosition == i {
		s.mu.Unlock()
		return nil
	}

	rec := s.records[i]
	s.records = slices.Delete(s.records, i, i+1)
	s.records = slices.Insert(s.records, newPosition, rec)
	s.reindexLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.requestSave()
	return nil
}

// ClearCompleted removes every completed record and returns how many were
// removed.
func (s *Store) ClearCompleted() (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, types.ErrClosed
	}
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r types.Record) bool { return r.Completed })
	removed := before - len(s.records)
	if removed == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.reindexLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.requestSave()
	return removed, nil
}

// Stats counts total, completed, and pending records.
func (s *Store) Stats() types.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.Stats{Total: len(s.records)}
	for _, r := range s.records {
		if r.Completed {
			st.Completed++
		}
	}
	st.Pending = st.Total - st.Completed
	return st
}

// Export returns a copy of every record in position order.
func (s *Store) Export() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneRecords(s.records)
}

// Import loads records in bulk. ImportReplace swaps the whole collection;
// ImportMerge appends records whose id is not present yet. Imported records
// keep their relative order and are placed after existing ones. Every
// record is validated first; on a *types.ValidationError nothing changes.
// Returns the number of records added.
func (s *Store) Import(records []types.Record, mode types.ImportMode) (int, error) {
	if mode != types.ImportMerge && mode != types.ImportReplace {
		return 0, &types.ValidationError{Field: "mode", Value: string(mode), Reason: "must be merge or replace"}
	}

	incoming := make([]types.Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		r = r.Clone()
		if err := r.Normalize(); err != nil {
			return 0, fmt.Errorf("import record %d: %w", i, err)
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		incoming = append(incoming, r)
	}
	slices.SortStableFunc(incoming, func(a, b types.Record) int { return a.Position - b.Position })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, types.ErrClosed
	}
	added := 0
	switch mode {
	case types.ImportReplace:
		s.records = incoming
		added = len(incoming)
	case types.ImportMerge:
		for _, r := range incoming {
			if s.indexOfLocked(r.ID) >= 0 {
				continue
			}
			s.records = append(s.records, r)
			added++
		}
	}
	if added == 0 && mode == types.ImportMerge {
		s.mu.Unlock()
		return 0, nil
	}
	s.reindexLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"mode": mode, "added": added}).Info("records imported")
	s.requestSave()
	return added, nil
}

// Backup writes any pending changes and copies the data file into the
// backup directory. Returns the backup's path.
func (s *Store) Backup() (string, error) {
	ctx := context.Background()
	_, statErr := os.Stat(s.cfg.Path())
	if s.worker.Pending() || errors.Is(statErr, fs.ErrNotExist) {
		if err := s.worker.Flush(ctx); err != nil {
			return "", err
		}
	}
	path, err := s.backups.Create(s.cfg.Path())
	if err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}
	s.logger.WithField("backup", path).Info("backup created")
	return path, nil
}

// Backups lists the backup files, newest first.
func (s *Store) Backups() ([]durability.BackupInfo, error) {
	return s.backups.List()
}

// RestoreFromBackup replaces the collection with the contents of a backup
// file and saves it as the new primary. A relative path is resolved inside
// the backup directory.
func (s *Store) RestoreFromBackup(path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.backups.Dir(), path)
	}
	records, err := recovery.ParseFile(path, s.logger)
	if err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrClosed
	}
	s.records = records
	s.reindexLocked()
	s.changedLocked()
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"backup": path, "records": len(records)}).Info("restored from backup")
	s.requestSave()
	return nil
}

// Query returns the records matching q, filtered and sorted by the SQLite
// index. Returns types.ErrClosed after Shutdown.
func (s *Store) Query(ctx context.Context, q types.Query) ([]types.Record, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.mu.Lock()
	closed, gen := s.closed, s.gen
	s.mu.Unlock()
	if closed || s.indexClosed {
		return nil, types.ErrClosed
	}

	if s.index == nil {
		idx, err := sqlite.Open()
		if err != nil {
			return nil, fmt.Errorf("opening query index: %w", err)
		}
		s.index = idx
	}
	if err := s.index.Sync(ctx, gen, s.snapshotWithGen); err != nil {
		return nil, fmt.Errorf("loading query index: %w", err)
	}
	return s.index.Query(ctx, q)
}

// Shutdown rejects further mutations, writes any pending changes, and
// stops the save loop. It returns the final write's error; later calls
// return the same result.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		s.inflight.Wait()
	}
	err := s.worker.Shutdown(context.Background())
	s.closeIndex()
	return err
}

// closeIndex waits for a running query and releases the index. Later
// queries return types.ErrClosed.
func (s *Store) closeIndex() {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.indexClosed = true
	if s.index != nil {
		s.index.Close()
		s.index = nil
	}
}

func (s *Store) snapshot() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneRecords(s.records)
}

func (s *Store) snapshotWithGen() ([]types.Record, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneRecords(s.records), s.gen
}

// changedLocked records a mutation. The caller must call requestSave once
// the lock is released.
func (s *Store) changedLocked() {
	s.gen++
	s.inflight.Add(1)
}

func (s *Store) requestSave() {
	defer s.inflight.Done()
	s.worker.Request()
}

func (s *Store) indexOfLocked(id string) int {
	return slices.IndexFunc(s.records, func(r types.Record) bool { return r.ID == id })
}

func (s *Store) reindexLocked() {
	for i := range s.records {
		s.records[i].Position = i
	}
}

func (s *Store) newIDLocked() string {
	for {
		id := types.NewID()
		if s.indexOfLocked(id) < 0 {
			return id
		}
	}
}
