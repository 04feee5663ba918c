package liftsuitecli

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftcare/liftsuite/internal/envutil"
)

// useWorkspace runs the test in an empty directory with a throwaway sqlite database.
func useWorkspace(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:"+filepath.Join(dir, "db", "test.db")+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")

	var out bytes.Buffer
	prev := Stdout
	Stdout = &out
	t.Cleanup(func() { Stdout = prev })
	return dir, &out
}

func TestExecuteUsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"bogus"},
		{"run"},
		{"import", "clients"},
		{"import", "contracts", "x.csv"},
		{"export", "work-orders"},
		{"backup"},
		{"setup", "--nope"},
	}
	for _, args := range cases {
		err := Execute(args)
		assert.ErrorIs(t, err, ErrUsage, "args %v", args)
	}
}

func TestSetupWritesEnvFile(t *testing.T) {
	dir, out := useWorkspace(t)
	envPath := filepath.Join(dir, "test.env")

	err := Execute([]string{"setup", "--admin-email", " Admin@Example.com ", "--admin-password", "a-long-password", "--env-file", envPath})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "wrote "+envPath)

	values, err := envutil.ReadDotEnv(envPath)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", values["ADMIN_EMAIL"])
	assert.Equal(t, "a-long-password", values["ADMIN_PASSWORD"])
	assert.Equal(t, "sqlite", values["DB_DRIVER"])
	assert.Equal(t, "http://localhost:8080", values["API_BASE_URL"])
	assert.GreaterOrEqual(t, len(values["QR_SIGNING_KEY"]), 16)

	info, err := os.Stat(envPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	err = Execute([]string{"setup", "--admin-email", "admin@example.com", "--admin-password", "a-long-password", "--env-file", envPath})
	assert.ErrorContains(t, err, "already exists")
	require.NoError(t, Execute([]string{"setup", "--admin-email", "admin@example.com", "--admin-password", "a-long-password", "--env-file", envPath, "--force"}))
}

func TestSetupValidatesInput(t *testing.T) {
	dir, _ := useWorkspace(t)
	envPath := filepath.Join(dir, ".env")

	assert.ErrorContains(t, Execute([]string{"setup", "--admin-password", "a-long-password", "--env-file", envPath}), "--admin-email")
	assert.ErrorContains(t, Execute([]string{"setup", "--admin-email", "a@b.co", "--env-file", envPath}), "--admin-password")
	assert.ErrorContains(t, Execute([]string{"setup", "--admin-email", "a@b.co", "--admin-password", "short", "--env-file", envPath}), "invalid admin password")
	assert.NoFileExists(t, envPath)
}

func TestImportThenBackup(t *testing.T) {
	dir, out := useWorkspace(t)
	csvPath := filepath.Join(dir, "clients.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name,Email,Phone\nGrupo Alfa,ops@alfa.mx,555-0100\nTorre Sur,,\n,missing@name.mx,\n"), 0o644))

	require.NoError(t, Execute([]string{"import", "clients", csvPath}))
	assert.Contains(t, out.String(), "clients: 2 created, 0 updated, 1 skipped")
	assert.Contains(t, out.String(), "row 4: name is required")

	out.Reset()
	require.NoError(t, Execute([]string{"import", "clients", csvPath}))
	assert.Contains(t, out.String(), "clients: 0 created, 2 updated, 1 skipped")

	backupPath := filepath.Join(dir, "backups", "snapshot.json.xz")
	require.NoError(t, Execute([]string{"backup", backupPath}))

	f, err := os.Open(backupPath)
	require.NoError(t, err)
	defer f.Close()
	b, err := ReadBackup(f)
	require.NoError(t, err)
	assert.False(t, b.CreatedAt.IsZero())
	require.Len(t, b.Tables["clients"], 2)
	names := []any{b.Tables["clients"][0]["name"], b.Tables["clients"][1]["name"]}
	assert.ElementsMatch(t, []any{"Grupo Alfa", "Torre Sur"}, names)
	assert.NotContains(t, b.Tables, "sessions")
}

func TestExportWritesCSV(t *testing.T) {
	dir, out := useWorkspace(t)
	path := filepath.Join(dir, "exports", "work-orders.csv")

	require.NoError(t, Execute([]string{"export", "--status", "pending", "work-orders", path}))
	assert.Contains(t, out.String(), "(0 rows)")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Folio", rows[0][0])
}

func TestExportRejectsUnknownTargets(t *testing.T) {
	dir, _ := useWorkspace(t)

	err := Execute([]string{"export", "work-orders", filepath.Join(dir, "out.pdf")})
	assert.ErrorIs(t, err, ErrUsage)

	err = Execute([]string{"export", "invoices", filepath.Join(dir, "out.csv")})
	assert.ErrorContains(t, err, `unknown export "invoices"`)
	assert.NoFileExists(t, filepath.Join(dir, "out.csv"))
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "data.db", sqlitePath(""))
	assert.Equal(t, "data/app.db", sqlitePath("file:data/app.db?_pragma=foreign_keys(1)"))
	assert.Equal(t, "", sqlitePath("file::memory:?cache=shared"))
}
