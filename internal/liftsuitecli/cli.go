// Package liftsuitecli implements the liftsuite command: environment setup, the servers, and
// the offline data commands that talk to the database directly.
package liftsuitecli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liftcare/liftsuite/internal/apiapp"
	"github.com/liftcare/liftsuite/internal/clientapp"
	"github.com/liftcare/liftsuite/internal/envutil"
	"github.com/liftcare/liftsuite/internal/logging"
	"github.com/liftcare/liftsuite/internal/security"
	"github.com/liftcare/liftsuite/internal/store"
)

var ErrUsage = errors.New("usage")

// Stdout receives command output. Tests swap it.
var Stdout io.Writer = os.Stdout

const envFile = ".env"

func Execute(args []string) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:])
	case "run":
		return runCommand(args[1:])
	case "import":
		return runImport(args[1:])
	case "export":
		return runExport(args[1:])
	case "backup":
		return runBackup(args[1:])
	case "help", "-h", "--help":
		PrintUsage(Stdout)
		return nil
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("%w: liftsuite <setup|run|import|export|backup> [...]", ErrUsage)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: liftsuite setup --admin-email <email> --admin-password <password> [--env-file .env] [--force]")
	fmt.Fprintln(w, "       liftsuite run api|client|all")
	fmt.Fprintln(w, "       liftsuite import elevators|clients <file.csv|file.xlsx|file.xls>")
	fmt.Fprintf(w, "       liftsuite export %s <file.csv|file.xlsx>\n", strings.Join(apiapp.ExportResources, "|"))
	fmt.Fprintln(w, "       liftsuite backup <file.json.xz>")
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	adminEmail := fs.String("admin-email", "", "developer account email")
	adminPass := fs.String("admin-password", "", "developer account password (min 12 chars)")
	envPath := fs.String("env-file", envFile, "path to .env file")
	dbPath := fs.String("db", "data/liftsuite.db", "sqlite database file")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	email := strings.ToLower(strings.TrimSpace(*adminEmail))
	if email == "" || !strings.Contains(email, "@") {
		return errors.New("--admin-email is required")
	}
	if *adminPass == "" {
		return errors.New("--admin-password is required")
	}
	if _, err := security.HashPassword(*adminPass); err != nil {
		return fmt.Errorf("invalid admin password: %w", err)
	}
	signingKey, err := security.RandomToken(32)
	if err != nil {
		return err
	}

	values := map[string]string{
		"ADMIN_EMAIL":     email,
		"ADMIN_PASSWORD":  *adminPass,
		"DB_DRIVER":       store.DriverSQLite,
		"DB_DSN":          "file:" + *dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		"API_ADDR":        ":8080",
		"CLIENT_ADDR":     ":3000",
		"API_BASE_URL":    "http://localhost:8080",
		"PUBLIC_BASE_URL": "http://localhost:3000",
		"QR_SIGNING_KEY":  signingKey,
		"BLOB_BACKEND":    "local",
		"BLOB_DIR":        "data/blobs",
		"LOG_LEVEL":       "info",
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "wrote %s\n", *envPath)
	return nil
}

func runCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing run target: api | client | all", ErrUsage)
	}

	if err := envutil.LoadDotEnv(envFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "api":
		return runAPI(ctx)
	case "client":
		return runClient(ctx)
	case "all":
		return runAll(ctx)
	default:
		return fmt.Errorf("%w: unknown run target %q", ErrUsage, args[0])
	}
}

func runAPI(ctx context.Context) error {
	cfg, err := apiapp.DefaultConfigFromEnv()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DBDriver == store.DriverSQLite {
		if err := ensureParentDirs(sqlitePath(cfg.DBDSN)); err != nil {
			return err
		}
	}
	if cfg.BlobBackend == "local" {
		if err := os.MkdirAll(cfg.BlobDir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", cfg.BlobDir, err)
		}
	}
	if err := apiapp.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api stopped", zap.Error(err))
		return err
	}
	return nil
}

func runClient(ctx context.Context) error {
	cfg, err := clientapp.DefaultConfigFromEnv()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := clientapp.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("client stopped", zap.Error(err))
		return err
	}
	return nil
}

// runAll stops both servers as soon as either one fails.
func runAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runAPI(gctx) })
	g.Go(func() error {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-gctx.Done():
			return nil
		}
		return runClient(gctx)
	})
	return g.Wait()
}

// sqlitePath extracts the database file from a "file:path?params" DSN.
func sqlitePath(dsn string) string {
	if dsn == "" {
		dsn = store.DefaultSQLiteDSN
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// openStore connects with the DB_DRIVER and DB_DSN from the environment and .env file.
func openStore(ctx context.Context) (*store.Store, error) {
	if err := envutil.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := apiapp.DefaultConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == store.DriverSQLite {
		if err := ensureParentDirs(sqlitePath(cfg.DBDSN)); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return st, nil
}
