// Package recovery loads the record collection at startup.
//
// The primary data file is tried first. A missing file means a first run
// and yields an empty collection. A file that is not a well-formed record
// list sends the loader through the most recent backups in order; the first
// one that parses wins. When none does the collection starts empty and the
// caller receives a *types.RecoveryError.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/taskpad/internal/durability"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

var tracer = otel.Tracer("taskpad.recovery")

// Source names where a loaded collection came from.
type Source string

// Load sources.
const (
	SourceNone    Source = "none"
	SourcePrimary Source = "primary"
	SourceBackup  Source = "backup"
)

// Result is the outcome of a load.
type Result struct {
	Records  []types.Record
	Source   Source
	Path     string   // file the records came from
	Tried    []string // backups attempted, most recent first
	Repaired []string // ids of incomplete records that were completed
	Dropped  []string // ids (or #index) of records that were discarded
}

// Loader reads the primary file and falls back to backups.
type Loader struct {
	path       string
	backups    *durability.Backups
	candidates int
	logger     *log.Logger

	cache map[string][]Entry
}

// NewLoader returns a Loader for the data file at path. At most candidates
// backups are tried; backups may be nil.
func NewLoader(path string, backups *durability.Backups, candidates int, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Loader{
		path:       path,
		backups:    backups,
		candidates: candidates,
		logger:     logger,
		cache:      make(map[string][]Entry),
	}
}

// Load returns the recovered collection sorted by position with dense
// positions. The error is non-nil only when the primary file exists but
// neither it nor any candidate backup could be parsed; Result then holds an
// empty collection.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	_, span := tracer.Start(ctx, "recovery.Load", trace.WithAttributes(attribute.String("path", l.path)))
	defer span.End()

	res := Result{Source: SourceNone}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.WithField("path", l.path).Info("no data file, starting empty")
		return res, nil
	}

	var entries []Entry
	if err == nil {
		entries, err = Decode(data)
	}
	if err == nil {
		res.Source = SourcePrimary
		res.Path = l.path
	} else {
		primaryErr := err
		l.logger.WithError(err).WithField("path", l.path).Warn("data file unreadable, trying backups")

		var path string
		entries, path, res.Tried = l.fromBackups()
		if entries == nil {
			rerr := &types.RecoveryError{Path: l.path, Tried: res.Tried, Err: primaryErr}
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "no valid data")
			l.logger.WithError(rerr).Error("recovery failed, starting empty")
			return res, rerr
		}
		res.Source = SourceBackup
		res.Path = path
		l.logger.WithFields(log.Fields{"path": l.path, "backup": path}).Info("recovered from backup")
	}

	res.Records, res.Repaired, res.Dropped = resolve(entries, l.lookup, l.logger)
	span.SetAttributes(
		attribute.String("source", string(res.Source)),
		attribute.Int("records", len(res.Records)),
	)
	return res, nil
}

// candidatesList returns the newest backups, at most l.candidates of them.
func (l *Loader) candidatesList() []durability.BackupInfo {
	if l.backups == nil {
		return nil
	}
	list, err := l.backups.List()
	if err != nil {
		l.logger.WithError(err).Warn("listing backups failed")
		return nil
	}
	if len(list) > l.candidates {
		list = list[:l.candidates]
	}
	return list
}

// fromBackups returns the entries of the first candidate backup that parses.
// Entries is nil when none does.
func (l *Loader) fromBackups() ([]Entry, string, []string) {
	var tried []string
	for _, b := range l.candidatesList() {
		tried = append(tried, b.Path)
		entries, err := l.decodeBackup(b.Path)
		if err != nil {
			l.logger.WithError(err).WithField("backup", b.Path).Warn("backup unreadable")
			continue
		}
		if entries == nil {
			entries = []Entry{}
		}
		return entries, b.Path, tried
	}
	return nil, "", tried
}

func (l *Loader) decodeBackup(path string) ([]Entry, error) {
	if entries, ok := l.cache[path]; ok {
		return entries, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	entries, err := Decode(data)
	if err != nil {
		return nil, err
	}
	l.cache[path] = entries
	return entries, nil
}

// lookup finds the newest complete copy of a record among the candidate
// backups.
func (l *Loader) lookup(id string) (types.Record, bool) {
	for _, b := range l.candidatesList() {
		entries, err := l.decodeBackup(b.Path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Record.ID == id && len(e.Missing) == 0 {
				return e.Record, true
			}
		}
	}
	return types.Record{}, false
}

// resolve turns decoded entries into a position-sorted, densely indexed
// list. Incomplete entries are completed from lookup when possible; an entry
// lacking only created_at gets LegacyCreatedAt; anything else is dropped.
// Duplicate ids keep their first occurrence.
func resolve(entries []Entry, lookup func(id string) (types.Record, bool), logger *log.Logger) ([]types.Record, []string, []string) {
	var repaired, dropped []string
	records := make([]types.Record, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		r := e.Record
		if len(e.Missing) > 0 {
			fixed, ok := repair(e, lookup)
			if !ok {
				name := r.ID
				if name == "" {
					name = fmt.Sprintf("#%d", e.Index)
				}
				logger.WithFields(log.Fields{"record": name, "missing": e.Missing}).Warn("dropping incomplete record")
				dropped = append(dropped, name)
				continue
			}
			logger.WithFields(log.Fields{"record": r.ID, "missing": e.Missing}).Warn("repaired incomplete record")
			repaired = append(repaired, r.ID)
			r = fixed
		}
		if seen[r.ID] {
			logger.WithField("record", r.ID).Warn("dropping duplicate record id")
			dropped = append(dropped, r.ID)
			continue
		}
		seen[r.ID] = true
		records = append(records, r)
	}

	slices.SortStableFunc(records, func(a, b types.Record) int {
		return a.Position - b.Position
	})
	for i := range records {
		records[i].Position = i
	}
	return records, repaired, dropped
}

func repair(e Entry, lookup func(id string) (types.Record, bool)) (types.Record, bool) {
	r := e.Record
	if r.ID != "" && lookup != nil {
		if b, ok := lookup(r.ID); ok {
			b.Position = r.Position
			return b, true
		}
	}
	if len(e.Missing) == 1 && e.Missing[0] == types.FieldCreatedAt {
		r.CreatedAt = LegacyCreatedAt
		return r, true
	}
	return types.Record{}, false
}
