package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/taskpad/internal/paths"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	configDir string
	dataDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	t.Setenv(paths.EnvConfigDir, "")
	t.Setenv(paths.EnvDataDir, "")
	t.Setenv("TASKPAD_LOG_LEVEL", "error")
	return &testEnv{
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e *testEnv) run(t *testing.T, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	full := append([]string{"--config-dir=" + e.configDir, "--data-dir=" + e.dataDir}, args...)
	code := Run(full, &out, &errb)
	return result{stdout: out.String(), stderr: errb.String(), code: code}
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	r := e.run(t, args...)
	require.Equal(t, exitSuccess, r.code, "taskpad %s\nstderr: %s", strings.Join(args, " "), r.stderr)
	return r.stdout
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func (e *testEnv) importFixture(t *testing.T) {
	t.Helper()
	e.mustRun(t, "import", filepath.Join("testdata", "fixture.json"))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	code := Run([]string{"version"}, &out, &out)
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, out.String(), "taskpad dev")
	assert.Contains(t, out.String(), modulePath)
}

func TestInit(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "init")
	assert.Contains(t, out, "taskpad initialized")

	configPath := filepath.Join(e.configDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data_dir: "+e.dataDir)
	assert.Contains(t, string(data), "save_debounce: 1s")

	tasks, err := os.ReadFile(filepath.Join(e.dataDir, types.DefaultDataFile))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(tasks))

	t.Run("idempotent", func(t *testing.T) {
		custom := []byte("data_file: custom.json\n")
		require.NoError(t, os.WriteFile(configPath, custom, 0o644))
		e.mustRun(t, "init")

		got, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Equal(t, custom, got)
		assert.FileExists(t, filepath.Join(e.dataDir, "custom.json"))
	})
}

func TestAddUpdateShow(t *testing.T) {
	e := newTestEnv(t)

	rec := decodeJSON[types.Record](t, e.mustRun(t, "--json", "add", "Buy", "milk", "--due", "2025-12-31", "--tag", "home,errand"))
	assert.Equal(t, "Buy milk", rec.Text)
	assert.Equal(t, []string{"home", "errand"}, rec.Tags)

	e.mustRun(t, "update", rec.ID, "--text", "Buy oat milk")
	got := decodeJSON[types.Record](t, e.mustRun(t, "--json", "show", rec.ID))
	assert.Equal(t, "Buy oat milk", got.Text)
	require.NotNil(t, got.DueDate, "update keeps fields it does not name")
	assert.Equal(t, "2025-12-31", *got.DueDate)
	assert.Equal(t, rec.Tags, got.Tags)

	e.mustRun(t, "update", rec.ID, "--due", "")
	got = decodeJSON[types.Record](t, e.mustRun(t, "--json", "show", rec.ID))
	assert.Nil(t, got.DueDate)

	e.mustRun(t, "done", rec.ID)
	stats := decodeJSON[types.Stats](t, e.mustRun(t, "--json", "stats"))
	assert.Equal(t, types.Stats{Total: 1, Completed: 1, Pending: 0}, stats)

	e.mustRun(t, "undone", rec.ID)
	stats = decodeJSON[types.Stats](t, e.mustRun(t, "--json", "stats"))
	assert.Equal(t, 1, stats.Pending)
}

func TestListAndShowGolden(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	g.Assert(t, "list", []byte(e.mustRun(t, "list")))
	g.Assert(t, "list_due_asc", []byte(e.mustRun(t, "list", "--sort", "due_asc")))
	g.Assert(t, "show", []byte(e.mustRun(t, "show", "t-3")))
	g.Assert(t, "stats", []byte(e.mustRun(t, "stats")))
}

func TestListFilters(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)

	ids := func(args ...string) []string {
		records := decodeJSON[[]types.Record](t, e.mustRun(t, append([]string{"--json", "list"}, args...)...))
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []string{"t-1", "t-3"}, ids("--pending"))
	assert.Equal(t, []string{"t-2"}, ids("--completed"))
	assert.Equal(t, []string{"t-1"}, ids("--tag", "errand"))
	assert.Equal(t, []string{"t-2"}, ids("--category", "work"))
	assert.Equal(t, []string{"t-3"}, ids("--search", "plumb"))
	assert.Equal(t, []string{"t-3"}, ids("--due-before", "2025-02-15"))
	assert.Equal(t, []string{"t-2"}, ids("--sort", "due_desc", "--limit", "1"))
}

func TestMoveDeleteClear(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)

	e.mustRun(t, "move", "t-3", "0")
	e.mustRun(t, "delete", "t-1")
	out := decodeJSON[map[string]int](t, e.mustRun(t, "--json", "clear"))
	assert.Equal(t, 1, out["removed"])

	records := decodeJSON[[]types.Record](t, e.mustRun(t, "--json", "list"))
	require.Len(t, records, 1)
	assert.Equal(t, "t-3", records[0].ID)
	assert.Equal(t, 0, records[0].Position)
}

func TestExportImportYAML(t *testing.T) {
	src := newTestEnv(t)
	src.importFixture(t)
	out := filepath.Join(t.TempDir(), "tasks.yaml")
	src.mustRun(t, "export", "--out", out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "text: Buy milk")

	dst := newTestEnv(t)
	dst.mustRun(t, "add", "will be replaced")
	added := decodeJSON[map[string]int](t, dst.mustRun(t, "--json", "import", out, "--mode", "replace"))
	assert.Equal(t, 3, added["added"])

	assert.JSONEq(t, src.mustRun(t, "export"), dst.mustRun(t, "export"))
}

func TestImportMergeSkipsExisting(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)

	added := decodeJSON[map[string]int](t, e.mustRun(t, "--json", "import", filepath.Join("testdata", "fixture.json")))
	assert.Zero(t, added["added"])
	stats := decodeJSON[types.Stats](t, e.mustRun(t, "--json", "stats"))
	assert.Equal(t, 3, stats.Total)
}

func TestBackupCommands(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)

	created := decodeJSON[map[string]string](t, e.mustRun(t, "--json", "backup", "create"))
	require.FileExists(t, created["path"])

	list := decodeJSON[[]map[string]any](t, e.mustRun(t, "--json", "backup", "list"))
	require.NotEmpty(t, list)
	name, _ := list[0]["name"].(string)
	require.Equal(t, filepath.Base(created["path"]), name)

	e.mustRun(t, "delete", "t-1")
	out := e.mustRun(t, "backup", "restore", name)
	assert.Contains(t, out, "Restored 3 tasks")
}

func TestExitCodes(t *testing.T) {
	e := newTestEnv(t)
	e.importFixture(t)

	badImport := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badImport, []byte(`[{"text":"no id","completed":false}]`), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"blank text", []string{"add", "   "}, exitUserError},
		{"bad due date", []string{"add", "x", "--due", "tomorrow"}, exitUserError},
		{"unknown id", []string{"show", "nope"}, exitUserError},
		{"position not a number", []string{"move", "t-1", "first"}, exitUserError},
		{"negative position", []string{"move", "--", "t-1", "-1"}, exitUserError},
		{"nothing to update", []string{"update", "t-1"}, exitUserError},
		{"missing argument", []string{"show"}, exitUserError},
		{"unknown flag", []string{"list", "--bogus"}, exitUserError},
		{"unknown sort", []string{"list", "--sort", "random"}, exitUserError},
		{"import missing id", []string{"import", badImport}, exitUserError},
		{"bad import mode", []string{"import", badImport, "--mode", "append"}, exitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.run(t, tt.args...)
			assert.Equal(t, tt.want, r.code, r.stderr)
			assert.Contains(t, r.stderr, "taskpad:")
		})
	}

	stats := decodeJSON[types.Stats](t, e.mustRun(t, "--json", "stats"))
	assert.Equal(t, 3, stats.Total, "failed commands change nothing")
}

func TestUnusableDataDirIsSystemError(t *testing.T) {
	e := newTestEnv(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	e.dataDir = file

	r := e.run(t, "list")
	assert.Equal(t, exitSysError, r.code, r.stderr)
}
