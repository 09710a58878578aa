package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/db"
	"github.com/pensum-app/pensum/internal/mcp"
	"github.com/pensum-app/pensum/internal/pgstore"
	"github.com/pensum-app/pensum/internal/scheduler"
	"github.com/pensum-app/pensum/internal/session"
	"github.com/pensum-app/pensum/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"topics": true, "import": true,
	"next": true, "grade": true, "notes": true, "stats": true,
	"review": true, "serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`

   _ __   ___ _ __  ___ _   _ _ __ ___
  | '_ \ / _ \ '_ \/ __| | | | '_ ' _ \
  | |_) |  __/ | | \__ \ |_| | | | | | |
  | .__/ \___|_| |_|___/\__,_|_| |_| |_|
  |_|

  Spaced-repetition exam trainer

  Usage: pensum <command> [options]
         pensum --help

  MCP server mode requires piped input.`)
}

// newLogger builds the process logger. Output goes to stderr so it never
// mixes with CLI JSON or the MCP stdio stream.
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openStore opens the configured backend. The returned func releases it.
func openStore(ctx context.Context, baseDir string, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Driver == config.DriverPostgres {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, pgstore.PoolOptions{
			MaxConns: int32(cfg.DBMaxOpenConns),
			MinConns: int32(cfg.DBMaxIdleConns),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	conn, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, err
	}
	db.ConfigurePool(conn, cfg)
	return db.NewStore(conn), func() { conn.Close() }, nil
}

// app bundles what the commands need.
type app struct {
	cfg      *config.Config
	store    store.Store
	registry *session.Registry
	logger   *slog.Logger
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init
	if isHelpOrVersion() {
		cliApp := newCLIApp(nil)
		if err := cliApp.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".pensum")

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	st, closeStore, err := openStore(context.Background(), baseDir, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	engine := session.NewEngine(st, scheduler.New(), session.LimitsFromConfig(cfg),
		session.WithLocation(cfg.Location()),
		session.WithLogger(logger),
	)
	a := &app{
		cfg:      cfg,
		store:    st,
		registry: session.NewRegistry(engine),
		logger:   logger,
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		cliApp := newCLIApp(a)
		if err := cliApp.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			closeStore()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'pensum --help' for usage.\n")
		closeStore()
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(st, a.registry, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
}
