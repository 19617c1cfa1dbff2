package durability

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// backupStampLayout is the timestamp embedded in backup file names.
const backupStampLayout = "20060102_150405"

// BackupInfo describes one backup file.
type BackupInfo struct {
	Name string    `json:"name" yaml:"name"`
	Path string    `json:"path" yaml:"path"`
	Time time.Time `json:"time" yaml:"time"`
	Seq  int       `json:"seq,omitempty" yaml:"seq,omitempty"`
	Size int64     `json:"size" yaml:"size"`
}

// Backups manages the rotating backup directory for one data file. Backups
// are named <base>_<YYYYMMDD_HHMMSS>.<ext>; a _<n> suffix separates backups
// taken within the same second.
type Backups struct {
	dir       string
	base      string
	ext       string
	retention int
	now       func() time.Time
	logger    *log.Logger
}

// NewBackups returns the backup set for dataPath stored in dir, keeping at
// most retention files.
func NewBackups(dataPath, dir string, retention int, logger *log.Logger) *Backups {
	if logger == nil {
		logger = log.StandardLogger()
	}
	name := filepath.Base(dataPath)
	ext := filepath.Ext(name)
	return &Backups{
		dir:       dir,
		base:      strings.TrimSuffix(name, ext),
		ext:       ext,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Dir returns the backup directory.
func (b *Backups) Dir() string { return b.dir }

// Create copies src into a new backup file and prunes old backups beyond
// the retention count. Returns the new backup's path.
func (b *Backups) Create(src string) (string, error) {
	path, err := b.copy(src)
	if err != nil {
		backupOperationsTotal.WithLabelValues("create", statusFailure).Inc()
		return "", err
	}
	backupOperationsTotal.WithLabelValues("create", statusSuccess).Inc()

	if _, err := b.Prune(); err != nil {
		b.logger.WithError(err).Warn("pruning backups failed")
	}
	return path, nil
}

func (b *Backups) copy(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening backup source: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	stamp := b.now().Format(backupStampLayout)
	for seq := b.nextSeq(stamp); ; seq++ {
		path := filepath.Join(b.dir, b.fileName(stamp, seq))
		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating backup file: %w", err)
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(path)
			return "", fmt.Errorf("copying backup: %w", err)
		}
		if err := out.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("closing backup file: %w", err)
		}
		return path, nil
	}
}

// nextSeq returns one past the highest sequence already used for stamp, so
// a backup never sorts before an older one from the same second.
func (b *Backups) nextSeq(stamp string) int {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	next := 0
	for _, e := range entries {
		ts, seq, ok := b.parse(e.Name())
		if ok && ts.Format(backupStampLayout) == stamp && seq >= next {
			next = seq + 1
		}
	}
	return next
}

func (b *Backups) fileName(stamp string, seq int) string {
	if seq == 0 {
		return b.base + "_" + stamp + b.ext
	}
	return fmt.Sprintf("%s_%s_%d%s", b.base, stamp, seq, b.ext)
}

// parse extracts the timestamp and sequence from a backup file name.
func (b *Backups) parse(name string) (time.Time, int, bool) {
	prefix := b.base + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, b.ext) {
		return time.Time{}, 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), b.ext)
	if len(mid) < len(backupStampLayout) {
		return time.Time{}, 0, false
	}
	ts, err := time.ParseInLocation(backupStampLayout, mid[:len(backupStampLayout)], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	rest := mid[len(backupStampLayout):]
	if rest == "" {
		return ts, 0, true
	}
	if !strings.HasPrefix(rest, "_") {
		return time.Time{}, 0, false
	}
	seq, err := strconv.Atoi(rest[1:])
	if err != nil || seq < 1 {
		return time.Time{}, 0, false
	}
	return ts, seq, true
}

// List returns the backups newest first. Files in the directory that do not
// follow the naming scheme are ignored. A missing directory yields no
// backups.
func (b *Backups) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []BackupInfo
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ts, seq, ok := b.parse(e.Name())
		if !ok {
			continue
		}
		info := BackupInfo{Name: e.Name(), Path: filepath.Join(b.dir, e.Name()), Time: ts, Seq: seq}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		out = append(out, info)
	}

	slices.SortFunc(out, func(x, y BackupInfo) int {
		if c := y.Time.Compare(x.Time); c != 0 {
			return c
		}
		return y.Seq - x.Seq
	})
	return out, nil
}

// Prune deletes the oldest backups beyond the retention count and returns
// how many were removed.
func (b *Backups) Prune() (int, error) {
	backups, err := b.List()
	if err != nil {
		return 0, err
	}
	if len(backups) <= b.retention {
		return 0, nil
	}

	removed := 0
	var errs []error
	for _, old := range backups[b.retention:] {
		if err := os.Remove(old.Path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", old.Name, err))
			continue
		}
		removed++
	}
	backupOperationsTotal.WithLabelValues("prune", statusSuccess).Add(float64(removed))
	if len(errs) > 0 {
		backupOperationsTotal.WithLabelValues("prune", statusFailure).Add(float64(len(errs)))
	}
	return removed, errors.Join(errs...)
}
