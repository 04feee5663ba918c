package liftsuitecli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ulikunitz/xz"

	"github.com/liftcare/liftsuite/internal/apiapp"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

// Backup is the document written by the backup command.
type Backup struct {
	CreatedAt time.Time                   `json:"createdAt"`
	Tables    map[string][]map[string]any `json:"tables"`
}

func runImport(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: liftsuite import elevators|clients <file>", ErrUsage)
	}
	kind, path := args[0], args[1]
	if kind != "elevators" && kind != "clients" {
		return fmt.Errorf("%w: unknown import %q", ErrUsage, kind)
	}

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := importFile(ctx, st, kind, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "%s: %d created, %d updated, %d skipped\n", kind, res.Created, res.Updated, res.Skipped)
	for _, msg := range res.Errors {
		fmt.Fprintf(Stdout, "  %s\n", msg)
	}
	return nil
}

func importFile(ctx context.Context, st *store.Store, kind, path string) (apiapp.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return apiapp.ImportResult{}, err
	}
	defer f.Close()

	rows, err := report.ReadRows(f, filepath.Base(path))
	if err != nil {
		return apiapp.ImportResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	records := report.Records(rows)
	if kind == "clients" {
		return apiapp.ImportClients(ctx, st, records)
	}
	return apiapp.ImportElevators(ctx, st, records)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	status := fs.String("status", "", "only rows with this status")
	clientID := fs.String("client", "", "only rows for this client id")
	from := fs.String("from", "", "first date (YYYY-MM-DD)")
	to := fs.String("to", "", "last date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: liftsuite export <resource> <file.csv|file.xlsx>", ErrUsage)
	}
	resource, path := fs.Arg(0), fs.Arg(1)

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.ListFilter{Status: *status, ClientID: *clientID, From: *from, To: *to}
	n, err := exportFile(ctx, st, resource, path, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "wrote %s (%s rows)\n", path, humanize.Comma(int64(n)))
	return nil
}

// exportFile writes the export as CSV or XLSX depending on the file extension and returns the
// row count.
func exportFile(ctx context.Context, st *store.Store, resource, path string, f store.ListFilter) (int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return 0, fmt.Errorf("%w: export file must end in .csv or .xlsx", ErrUsage)
	}
	table, err := apiapp.ExportTable(ctx, st, resource, f)
	if err != nil {
		return 0, err
	}
	err = writeFile(path, func(w io.Writer) error {
		if ext == ".csv" {
			return report.WriteCSV(w, table)
		}
		return report.WriteXLSX(w, table)
	})
	return len(table.Rows), err
}

func runBackup(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: liftsuite backup <file.json.xz>", ErrUsage)
	}
	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := writeBackup(ctx, st, args[0], time.Now().UTC()); err != nil {
		return err
	}
	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "wrote %s (%s)\n", args[0], humanize.Bytes(uint64(info.Size())))
	return nil
}

// writeBackup stores an xz-compressed JSON snapshot of every table except sessions.
func writeBackup(ctx context.Context, st *store.Store, path string, now time.Time) error {
	tables, err := st.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		zw, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(zw)
		enc.SetIndent("", "  ")
		if err := enc.Encode(Backup{CreatedAt: now, Tables: tables}); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	})
}

// ReadBackup decodes a file written by the backup command.
func ReadBackup(r io.Reader) (Backup, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return Backup{}, fmt.Errorf("open backup: %w", err)
	}
	var b Backup
	if err := json.NewDecoder(zr).Decode(&b); err != nil {
		return Backup{}, fmt.Errorf("decode backup: %w", err)
	}
	if b.Tables == nil {
		return Backup{}, errors.New("backup has no tables")
	}
	return b, nil
}

// writeFile writes through a temp file in the same directory and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	if err := ensureParentDirs(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
