package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/save4223/save4223server/internal/access"
	"github.com/save4223/save4223server/internal/api"
	"github.com/save4223/save4223server/internal/auth"
	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/obs"
	"github.com/save4223/save4223server/internal/reconcile"
	"github.com/save4223/save4223server/internal/seed"
	"github.com/save4223/save4223server/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

type config struct {
	dbPath           string
	addr             string
	adminEmail       string
	logPath          string
	edgeSecret       string
	jwtSecret        string
	authorizeTimeout time.Duration
	sessionMaxAge    time.Duration
	sweepInterval    time.Duration
	edgeRate         float64
	edgeBurst        int
	trustProxy       bool
	email            string
	ttl              time.Duration
}

const usage = `Usage: save4223 [command] [flags]

Commands:
  serve                   run the API server (default)
  seed                    load demo cabinets, card and items
  token                   print a signed user token for a profile

Flags:
  -d, -db <path>              SQLite database path (default: save4223.sqlite3)
  -a, -addr <host:port>       listen address (default: :8080)
  -u, -admin <email>          admin email on first run (default: admin@localhost)
  -l, -log <path>             log file path (default: no file, stdout/stderr only)
  -edge-secret <secret>       edge device bearer secret (env EDGE_API_SECRET)
  -jwt-secret <secret>        user token signing secret (env JWT_SECRET)
  -authorize-timeout <dur>    authorize deadline (default: 3s)
  -session-max-age <dur>      ACTIVE sessions older than this time out (default: 30m)
  -sweep-interval <dur>       session timeout sweep interval (default: 1m)
  -edge-rate <n>              edge requests per second per IP (default: 10)
  -edge-burst <n>             edge request burst per IP (default: 20)
  -trust-proxy                key rate limits by X-Forwarded-For (behind a proxy only)
  -e, -email <email>          profile for the token command
  -ttl <dur>                  token lifetime (default: 168h)
  -h, -help                   show this help and exit
`

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("save4223", flag.ContinueOnError)
	cfg := &config{}

	fs.StringVar(&cfg.dbPath, "db", "save4223.sqlite3", "")
	fs.StringVar(&cfg.dbPath, "d", "save4223.sqlite3", "")

	fs.StringVar(&cfg.addr, "addr", ":8080", "")
	fs.StringVar(&cfg.addr, "a", ":8080", "")

	fs.StringVar(&cfg.adminEmail, "admin", "admin@localhost", "")
	fs.StringVar(&cfg.adminEmail, "u", "admin@localhost", "")

	fs.StringVar(&cfg.logPath, "log", "", "")
	fs.StringVar(&cfg.logPath, "l", "", "")

	fs.StringVar(&cfg.edgeSecret, "edge-secret", os.Getenv("EDGE_API_SECRET"), "")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "")
	fs.DurationVar(&cfg.authorizeTimeout, "authorize-timeout", access.DefaultAuthorizeTimeout, "")
	fs.DurationVar(&cfg.sessionMaxAge, "session-max-age", 30*time.Minute, "")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", time.Minute, "")
	fs.Float64Var(&cfg.edgeRate, "edge-rate", 10, "")
	fs.IntVar(&cfg.edgeBurst, "edge-burst", 20, "")
	fs.BoolVar(&cfg.trustProxy, "trust-proxy", false, "")

	fs.StringVar(&cfg.email, "email", "", "")
	fs.StringVar(&cfg.email, "e", "", "")
	fs.DurationVar(&cfg.ttl, "ttl", auth.TokenExpiry, "")

	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, nil
}

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := parseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	switch command {
	case "serve":
		err = serve(cfg)
	case "seed":
		err = runSeed(cfg)
	case "token":
		err = runToken(cfg)
	default:
		fmt.Fprint(os.Stdout, usage)
		err = fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		if closeLog != nil {
			closeLog()
		}
		os.Exit(1)
	}
}

// openDatabase opens the database and ensures the schema (idempotent).
func openDatabase(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return database, nil
}

// resolveSecrets prefers explicit secrets and falls back to ones generated
// and stored in the settings table on first run.
func resolveSecrets(ctx context.Context, database *sql.DB, cfg *config) error {
	if cfg.edgeSecret == "" {
		s, err := store.GetOrCreateSecret(ctx, database, store.SettingEdgeSecret)
		if err != nil {
			return err
		}
		cfg.edgeSecret = s
	}
	if cfg.jwtSecret == "" {
		s, err := store.GetOrCreateSecret(ctx, database, store.SettingJWTSecret)
		if err != nil {
			return err
		}
		cfg.jwtSecret = s
	}
	return nil
}

func serve(cfg *config) error {
	ctx := context.Background()

	database, err := openDatabase(cfg.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.dbPath)

	if err := resolveSecrets(ctx, database, cfg); err != nil {
		return err
	}
	if err := ensureAdmin(ctx, database, cfg); err != nil {
		return err
	}

	obs.Init()

	engine := access.NewEngine(database, cfg.edgeSecret, slog.Default())
	engine.AuthorizeTimeout = cfg.authorizeTimeout
	reconciler := reconcile.New(database, slog.Default())
	limiter := api.NewRateLimiter(cfg.edgeRate, cfg.edgeBurst)
	limiter.TrustForwarded = cfg.trustProxy

	router := api.NewRouter(api.Config{
		DB:          database,
		JWTSecret:   cfg.jwtSecret,
		EdgeSecret:  cfg.edgeSecret,
		Access:      engine,
		Reconciler:  reconciler,
		EdgeLimiter: limiter,
	})

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go reconciler.RunSweeper(bgCtx, cfg.sweepInterval, cfg.sessionMaxAge)
	go limiter.Run(bgCtx)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())
		stopBackground()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// ensureAdmin creates the first admin profile when none exists and prints a
// token for it.
func ensureAdmin(ctx context.Context, database *sql.DB, cfg *config) error {
	n, err := store.CountAdmins(ctx, database)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	admin, err := store.CreateUser(ctx, database, "", cfg.adminEmail, "Administrator", model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	token, err := auth.GenerateToken(cfg.jwtSecret, admin.ID, admin.Email, admin.Role, cfg.ttl)
	if err != nil {
		return err
	}

	fmt.Println("Admin profile created:")
	fmt.Printf("  Email: %s\n", admin.Email)
	fmt.Printf("  ID:    %s\n", admin.ID)
	fmt.Printf("  Token: %s\n", token)
	fmt.Println()
	fmt.Println("Mint new tokens with: save4223 token -email <email>")
	fmt.Println()
	return nil
}

func runSeed(cfg *config) error {
	ctx := context.Background()

	database, err := openDatabase(cfg.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	res, err := seed.Seed(ctx, database, time.Now())
	if errors.Is(err, seed.ErrAlreadySeeded) {
		fmt.Println("Database already seeded.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Seeded demo data:")
	fmt.Printf("  User:               %s (%s)\n", seed.TestUserEmail, res.UserID)
	fmt.Printf("  Card:               %s\n", seed.TestCardUID)
	fmt.Printf("  Open cabinet:       %d\n", res.OpenCabinetID)
	fmt.Printf("  Restricted cabinet: %d\n", res.RestrictedCabinetID)
	fmt.Printf("  Item tags:          %v\n", res.RfidTags)
	return nil
}

func runToken(cfg *config) error {
	if cfg.email == "" {
		return fmt.Errorf("-email required")
	}
	ctx := context.Background()

	database, err := openDatabase(cfg.dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := resolveSecrets(ctx, database, cfg); err != nil {
		return err
	}

	user, err := store.GetUserByEmail(ctx, database, cfg.email)
	if err != nil {
		return err
	}
	if user == nil {
		return model.ErrUserNotFound
	}

	token, err := auth.GenerateToken(cfg.jwtSecret, user.ID, user.Email, user.Role, cfg.ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
