package durability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// Encode serializes records as the durable file format: an indented JSON
// array sorted by position, with a trailing newline.
func Encode(records []types.Record) ([]byte, error) {
	sorted := slices.Clone(records)
	if sorted == nil {
		sorted = []types.Record{}
	}
	slices.SortStableFunc(sorted, func(a, b types.Record) int {
		return a.Position - b.Position
	})
	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Writer writes snapshots to the data file with atomic replace, backup
// rotation, and a bounded number of attempts.
type Writer struct {
	path     string
	backups  *Backups
	attempts int
	delay    time.Duration
	logger   *log.Logger
	sleep    func(time.Duration)
}

// NewWriter returns a Writer for path. Failed attempts are retried up to
// attempts in total, waiting delay*n before the (n+1)th. backups may be nil
// to disable rotation.
func NewWriter(path string, backups *Backups, attempts int, delay time.Duration, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Writer{
		path:     path,
		backups:  backups,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Path returns the data file path.
func (w *Writer) Path() string { return w.path }

// Backups returns the writer's backup set, or nil.
func (w *Writer) Backups() *Backups { return w.backups }

// Write replaces the data file with records. The live file, if any, is
// copied to the backup directory once before it is replaced. Returns a
// *types.PersistenceError when every attempt fails; the live file is then
// left as it was.
func (w *Writer) Write(ctx context.Context, records []types.Record) error {
	start := time.Now()
	_, span := tracer.Start(ctx, "durability.Write",
		trace.WithAttributes(
			attribute.String("path", w.path),
			attribute.Int("records", len(records)),
		),
	)
	defer span.End()

	data, err := Encode(records)
	if err != nil {
		return w.fail(span, start, &types.PersistenceError{Path: w.path, Err: err})
	}

	backedUp := false
	backup := func() {
		if backedUp || w.backups == nil {
			return
		}
		backedUp = true
		live, err := os.ReadFile(w.path)
		if err != nil {
			return
		}
		if !isRecordList(live) {
			w.logger.WithField("path", w.path).Warn("live file is not a record list, not backing it up")
			return
		}
		if _, err := w.backups.Create(w.path); err != nil {
			w.logger.WithError(err).WithField("path", w.path).Warn("backup before save failed")
		}
	}

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if attempt > 1 {
			writeRetriesTotal.Inc()
			w.sleep(w.delay * time.Duration(attempt-1))
		}
		lastErr = w.attempt(data, backup)
		if lastErr == nil {
			writesTotal.WithLabelValues(statusSuccess).Inc()
			writeDurationHistogram.WithLabelValues(statusSuccess).Observe(time.Since(start).Seconds())
			snapshotRecordsGauge.Set(float64(len(records)))
			span.SetAttributes(attribute.Int("attempts", attempt))
			return nil
		}
		w.logger.WithError(lastErr).WithFields(log.Fields{
			"path":    w.path,
			"attempt": attempt,
			"of":      w.attempts,
		}).Warn("save attempt failed")
	}

	return w.fail(span, start, &types.PersistenceError{Path: w.path, Attempts: w.attempts, Err: lastErr})
}

// isRecordList reports whether data is a well-formed JSON array. A corrupt
// live file is never rotated into the backups it may have been recovered
// from.
func isRecordList(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '[' && json.Valid(data)
}

func (w *Writer) attempt(data []byte, beforeReplace func()) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return writeFileAtomic(w.path, data, beforeReplace)
}

func (w *Writer) fail(span trace.Span, start time.Time, err *types.PersistenceError) error {
	writesTotal.WithLabelValues(statusFailure).Inc()
	writeDurationHistogram.WithLabelValues(statusFailure).Observe(time.Since(start).Seconds())
	span.RecordError(err)
	span.SetStatus(codes.Error, "save failed")
	w.logger.WithError(err.Err).WithFields(log.Fields{
		"path":     err.Path,
		"attempts": err.Attempts,
	}).Error("save failed, in-memory state kept")
	return err
}
