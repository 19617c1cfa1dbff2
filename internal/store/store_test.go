package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/taskpad/internal/recovery"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := types.DefaultConfig(t.TempDir())
	cfg.SaveDebounce = 5 * time.Millisecond
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func openStore(t *testing.T, cfg types.Config, opts ...Option) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := Open(cfg, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func positions(rs []types.Record) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Position
	}
	return out
}

func texts(rs []types.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Text
	}
	return out
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(types.Config{})
	assert.ErrorIs(t, err, types.ErrDataDirRequired)
}

func TestScenarioCreateDefaults(t *testing.T) {
	s := openStore(t, testConfig(t))

	_, err := s.Create("Buy milk", types.Extensions{})
	require.NoError(t, err)

	rs := s.Read(types.Filter{})
	require.Len(t, rs, 1)
	assert.Equal(t, "Buy milk", rs[0].Text)
	assert.False(t, rs[0].Completed)
	assert.Equal(t, 0, rs[0].Position)
	assert.Nil(t, rs[0].DueDate)
	assert.NotEmpty(t, rs[0].ID)
	assert.NotEmpty(t, rs[0].CreatedAt)
}

func TestScenarioUpdatePreservesDueDate(t *testing.T) {
	s := openStore(t, testConfig(t))

	rec, err := s.Create("Task", types.Extensions{DueDate: types.String("2025-12-31")})
	require.NoError(t, err)
	require.NoError(t, s.Update(rec.ID, types.Updates{types.FieldText: "Task v2"}))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task v2", got.Text)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2025-12-31", *got.DueDate)
	assert.NotNil(t, got.ModifiedAt)
}

func TestScenarioDeleteReindexes(t *testing.T) {
	s := openStore(t, testConfig(t))

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		rec, err := s.Create(text, types.Extensions{})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.Delete(ids[1]))

	rs := s.Read(types.Filter{})
	assert.Equal(t, []string{"one", "three"}, texts(rs))
	assert.Equal(t, []int{0, 1}, positions(rs))
}

func TestScenarioInvalidDueDateLeavesRecord(t *testing.T) {
	s := openStore(t, testConfig(t))

	rec, err := s.Create("Task", types.Extensions{Priority: types.String("High")})
	require.NoError(t, err)

	err = s.Update(rec.ID, types.Updates{types.FieldText: "changed", types.FieldDueDate: "bad"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, types.FieldDueDate, verr.Field)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestScenarioRecoverFromBackup(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg)
	_, err := s.Create("Saved in backup", types.Extensions{})
	require.NoError(t, err)
	_, err = s.Backup()
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())

	require.NoError(t, os.WriteFile(cfg.Path(), []byte("{ not json"), 0o644))

	reopened := openStore(t, cfg)
	assert.Equal(t, recovery.SourceBackup, reopened.Recovery().Source)
	assert.NoError(t, reopened.RecoveryErr())
	assert.Equal(t, []string{"Saved in backup"}, texts(reopened.Read(types.Filter{})))
}

func TestRecoveryRewriteKeepsValidBackup(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackupRetention = 1
	s := openStore(t, cfg)
	_, err := s.Create("Only good copy", types.Extensions{})
	require.NoError(t, err)
	_, err = s.Backup()
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())

	require.NoError(t, os.WriteFile(cfg.Path(), []byte("{ not json"), 0o644))

	reopened := openStore(t, cfg)
	require.Equal(t, recovery.SourceBackup, reopened.Recovery().Source)
	require.NoError(t, reopened.Shutdown())

	backups, err := reopened.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	records, err := recovery.ParseFile(backups[0].Path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Only good copy"}, texts(records))
	primary, err := recovery.ParseFile(cfg.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Only good copy"}, texts(primary))
}

func TestRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebounce = time.Hour
	s := openStore(t, cfg)

	created, err := s.Create("Round trip", types.Extensions{
		DueDate:  types.String("2026-01-15"),
		Priority: types.String("Low"),
		Category: types.String("home"),
		Tags:     []string{"a", "b"},
		Color:    types.String("#00ff00"),
		Notes:    types.String("note"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())

	reopened := openStore(t, cfg)
	rs := reopened.Read(types.Filter{})
	require.Len(t, rs, 1)
	assert.Equal(t, created, rs[0])
}

func TestCreateValidation(t *testing.T) {
	s := openStore(t, testConfig(t))

	tests := []struct {
		name string
		text string
		ext  types.Extensions
	}{
		{"empty text", "", types.Extensions{}},
		{"blank text", "   ", types.Extensions{}},
		{"too long", strings.Repeat("x", 501), types.Extensions{}},
		{"bad due date", "ok", types.Extensions{DueDate: types.String("someday")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(tt.text, tt.ext)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
	assert.Empty(t, s.Read(types.Filter{}))
}

func TestNotFound(t *testing.T) {
	s := openStore(t, testConfig(t))

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, s.Update("missing", types.Updates{types.FieldText: "x"}), types.ErrNotFound)
	assert.ErrorIs(t, s.Delete("missing"), types.ErrNotFound)
	assert.ErrorIs(t, s.Reorder("missing", 0), types.ErrNotFound)
}

func TestReorder(t *testing.T) {
	s := openStore(t, testConfig(t))
	var ids []string
	for _, text := range []string{"a", "b", "c", "d"} {
		rec, err := s.Create(text, types.Extensions{})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	require.NoError(t, s.Reorder(ids[0], 2))
	assert.Equal(t, []string{"b", "c", "a", "d"}, texts(s.Read(types.Filter{})))

	require.NoError(t, s.Reorder(ids[3], 0))
	assert.Equal(t, []string{"d", "b", "c", "a"}, texts(s.Read(types.Filter{})))

	require.NoError(t, s.Reorder(ids[1], 99), "positions past the end are clamped")
	assert.Equal(t, []string{"d", "c", "a", "b"}, texts(s.Read(types.Filter{})))
	assert.Equal(t, []int{0, 1, 2, 3}, positions(s.Read(types.Filter{})))

	err := s.Reorder(ids[2], -1)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, []string{"d", "c", "a", "b"}, texts(s.Read(types.Filter{})))
}

func TestUpdateIgnoresUnknownKeys(t *testing.T) {
	s := openStore(t, testConfig(t))
	rec, err := s.Create("Task", types.Extensions{})
	require.NoError(t, err)

	require.NoError(t, s.Update(rec.ID, types.Updates{"mood": "happy", types.FieldID: "hijack"}))
	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got, "nothing applied, nothing changed")
}

func TestReadFilterAndStats(t *testing.T) {
	s := openStore(t, testConfig(t))
	a, err := s.Create("a", types.Extensions{Category: types.String("work")})
	require.NoError(t, err)
	_, err = s.Create("b", types.Extensions{Tags: []string{"x"}})
	require.NoError(t, err)
	c, err := s.Create("c", types.Extensions{Category: types.String("work")})
	require.NoError(t, err)
	require.NoError(t, s.Update(a.ID, types.Updates{types.FieldCompleted: true}))
	require.NoError(t, s.Update(c.ID, types.Updates{types.FieldCompleted: true}))

	done := true
	assert.Equal(t, []string{"a", "c"}, texts(s.Read(types.Filter{Completed: &done})))
	assert.Equal(t, []string{"b"}, texts(s.Read(types.Filter{Tag: "x"})))
	assert.Equal(t, types.Stats{Total: 3, Completed: 2, Pending: 1}, s.Stats())

	removed, err := s.ClearCompleted()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	rs := s.Read(types.Filter{})
	assert.Equal(t, []string{"b"}, texts(rs))
	assert.Equal(t, []int{0}, positions(rs))

	removed, err = s.ClearCompleted()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := openStore(t, testConfig(t))
	rec, err := s.Create("Task", types.Extensions{Tags: []string{"a"}, Notes: types.String("n")})
	require.NoError(t, err)

	rec.Tags[0] = "mutated"
	*rec.Notes = "mutated"
	rs := s.Read(types.Filter{})
	rs[0].Tags[0] = "mutated"

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Equal(t, "n", *got.Notes)
}

func TestImport(t *testing.T) {
	s := openStore(t, testConfig(t))
	existing, err := s.Create("existing", types.Extensions{})
	require.NoError(t, err)

	incoming := []types.Record{
		{ID: "i2", Text: "second", CreatedAt: "2025-01-01T00:00:00Z", Position: 5},
		{ID: existing.ID, Text: "clash", CreatedAt: "2025-01-01T00:00:00Z", Position: 0},
		{ID: "i1", Text: "first", CreatedAt: "2025-01-01T00:00:00Z", Position: 1},
	}
	added, err := s.Import(incoming, types.ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	rs := s.Read(types.Filter{})
	assert.Equal(t, []string{"existing", "first", "second"}, texts(rs))
	assert.Equal(t, []int{0, 1, 2}, positions(rs))

	added, err = s.Import(incoming[:1], types.ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"second"}, texts(s.Read(types.Filter{})))
	assert.Equal(t, []int{0}, positions(s.Read(types.Filter{})))
}

func TestImportRejectsInvalidRecords(t *testing.T) {
	s := openStore(t, testConfig(t))
	_, err := s.Create("keep me", types.Extensions{})
	require.NoError(t, err)

	bad := []types.Record{
		{ID: "ok", Text: "fine", CreatedAt: "t"},
		{ID: "", Text: "no id", CreatedAt: "t"},
	}
	_, err = s.Import(bad, types.ImportReplace)
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = s.Import(nil, types.ImportMode("append"))
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, []string{"keep me"}, texts(s.Read(types.Filter{})))
}

func TestBackupAndRestore(t *testing.T) {
	s := openStore(t, testConfig(t))
	_, err := s.Create("v1", types.Extensions{})
	require.NoError(t, err)

	path, err := s.Backup()
	require.NoError(t, err)
	backups, err := s.Backups()
	require.NoError(t, err)
	require.NotEmpty(t, backups)
	assert.Equal(t, path, backups[0].Path)

	_, err = s.Create("v2", types.Extensions{})
	require.NoError(t, err)
	assert.Len(t, s.Read(types.Filter{}), 2)

	require.NoError(t, s.RestoreFromBackup(filepath.Base(path)))
	assert.Equal(t, []string{"v1"}, texts(s.Read(types.Filter{})))

	assert.Error(t, s.RestoreFromBackup("does-not-exist.json"))
}

func TestRestoreResolvesRelativePathsInBackupDir(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg)
	_, err := s.Create("archived", types.Extensions{})
	require.NoError(t, err)
	path, err := s.Backup()
	require.NoError(t, err)

	nested := filepath.Join(cfg.BackupDir(), "old", filepath.Base(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.Rename(path, nested))

	_, err = s.Create("current", types.Extensions{})
	require.NoError(t, err)

	require.NoError(t, s.RestoreFromBackup(filepath.Join("old", filepath.Base(path))))
	assert.Equal(t, []string{"archived"}, texts(s.Read(types.Filter{})))

	// Absolute paths are used as given.
	require.NoError(t, s.RestoreFromBackup(nested))
	assert.Equal(t, []string{"archived"}, texts(s.Read(types.Filter{})))
}

func TestShutdownFlushesPendingWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebounce = time.Hour
	s := openStore(t, cfg)

	_, err := s.Create("within debounce window", types.Extensions{})
	require.NoError(t, err)
	_, statErr := os.Stat(cfg.Path())
	require.True(t, errors.Is(statErr, os.ErrNotExist), "nothing written yet")

	require.NoError(t, s.Shutdown())
	records, err := recovery.ParseFile(cfg.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"within debounce window"}, texts(records))

	_, err = s.Create("late", types.Extensions{})
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, s.Update(records[0].ID, types.Updates{types.FieldText: "x"}), types.ErrClosed)
	_, err = s.Query(context.Background(), types.Query{})
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.Len(t, s.Read(types.Filter{}), 1, "reads keep working")
	assert.NoError(t, s.Shutdown())
}

func TestSaveCallbacks(t *testing.T) {
	var saves atomic.Int32
	s := openStore(t, testConfig(t), WithSaveHandler(func() { saves.Add(1) }))

	_, err := s.Create("x", types.Extensions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return saves.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestPersistenceAndRecoveryErrorsReachCallbacks(t *testing.T) {
	cfg := testConfig(t)
	// A directory where the data file should be: it cannot be read as a
	// record list and cannot be replaced by rename.
	require.NoError(t, os.MkdirAll(cfg.Path(), 0o755))

	var mu sync.Mutex
	var errs []error
	s := openStore(t, cfg, WithErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}))
	assert.ErrorIs(t, s.RecoveryErr(), types.ErrRecovery)

	rec, err := s.Create("kept in memory", types.Extensions{})
	require.NoError(t, err, "persistence problems never fail the caller")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, errs[0], types.ErrRecovery)
	assert.ErrorIs(t, errs[1], types.ErrPersistence)
	mu.Unlock()

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept in memory", got.Text)
}

func TestConcurrentMutations(t *testing.T) {
	s := openStore(t, testConfig(t))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				rec, err := s.Create("task", types.Extensions{})
				if !assert.NoError(t, err) {
					return
				}
				switch i % 3 {
				case 0:
					assert.NoError(t, s.Update(rec.ID, types.Updates{types.FieldCompleted: true}))
				case 1:
					assert.NoError(t, s.Reorder(rec.ID, w))
				case 2:
					assert.NoError(t, s.Delete(rec.ID))
				}
				_ = s.Read(types.Filter{})
				_ = s.Stats()
			}
		}()
	}
	wg.Wait()

	rs := s.Read(types.Filter{})
	want := make([]int, len(rs))
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, positions(rs))
	deleted := workers * (perWorker / 3)
	assert.Equal(t, workers*perWorker-deleted, len(rs))

	require.NoError(t, s.Shutdown())
	persisted, err := recovery.ParseFile(s.Path(), nil)
	require.NoError(t, err)
	assert.Len(t, persisted, len(rs))
}

func TestQuery(t *testing.T) {
	s := openStore(t, testConfig(t))
	_, err := s.Create("later", types.Extensions{DueDate: types.String("2025-06-01")})
	require.NoError(t, err)
	_, err = s.Create("undated", types.Extensions{})
	require.NoError(t, err)
	_, err = s.Create("sooner", types.Extensions{DueDate: types.String("2025-02-01")})
	require.NoError(t, err)

	ctx := context.Background()
	rs, err := s.Query(ctx, types.Query{Sort: types.SortDueAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"sooner", "later", "undated"}, texts(rs))

	// The index follows later mutations.
	_, err = s.Create("latest", types.Extensions{DueDate: types.String("2025-01-01")})
	require.NoError(t, err)
	rs, err = s.Query(ctx, types.Query{Sort: types.SortDueAsc, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"latest"}, texts(rs))
}

func TestQueryAfterIndexReleased(t *testing.T) {
	s := openStore(t, testConfig(t))
	_, err := s.Create("task", types.Extensions{})
	require.NoError(t, err)

	// Shutdown releases the index after marking the store closed; a query
	// that already passed the closed check must still see ErrClosed.
	s.closeIndex()
	_, err = s.Query(context.Background(), types.Query{})
	assert.ErrorIs(t, err, types.ErrClosed)
}

func TestQueryConcurrentWithShutdown(t *testing.T) {
	for range 20 {
		cfg := testConfig(t)
		cfg.DataDir = t.TempDir()
		logger, _ := test.NewNullLogger()
		s, err := Open(cfg, WithLogger(logger))
		require.NoError(t, err)
		_, err = s.Create("task", types.Extensions{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 64)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 8 {
					_, err := s.Query(context.Background(), types.Query{Sort: types.SortCreatedDesc})
					errs <- err
				}
			}()
		}
		require.NoError(t, s.Shutdown())
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, types.ErrClosed)
			}
		}
	}
}
