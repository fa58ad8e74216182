// Command arrivals fetches recent arrivals for one airport from the
// aviationstack flights API, stores them in a SQLite table, prints the
// per-departure-airport counts and renders them as a bar chart.
//
// Usage:
//
//	arrivals [run] [options]     fetch, store, query and plot (default)
//	arrivals stats [-db FILE]    print grouped counts from an existing database
//	arrivals serve [options]     serve the stored data, chart and metrics over HTTP
//
// The API credential is read from AVIATIONSTACK_API_KEY, which may also be
// set in a .env file in the working directory. Every command accepts
// -config FILE to load settings from YAML before the environment and flags
// are applied.
//
// Exit status is 0 on success, 2 for configuration or usage errors and 1
// for any other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arrivals_etl/internal/api"
	"arrivals_etl/internal/config"
	"arrivals_etl/internal/logger"
	"arrivals_etl/internal/metrics"
	"arrivals_etl/internal/pipeline"
	"arrivals_etl/internal/storage"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "arrivals - commands:")
	fmt.Fprintln(w, "  run    - fetch arrivals, store them, print counts and save a chart (default)")
	fmt.Fprintln(w, "  stats  - print departure-airport counts from an existing database")
	fmt.Fprintln(w, "  serve  - serve flights, counts, chart and metrics over HTTP")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  arrivals run [-config file.yaml] [-airport DUB] [-limit 10] [-db flight_data.db] [-chart flight_chart.png]")
	fmt.Fprintln(w, "  arrivals stats [-db flight_data.db]")
	fmt.Fprintln(w, "  arrivals serve [-listen :8082] [-auth -api-keys k1,k2]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  %s must hold the aviationstack access key (a .env file is read if present).\n", config.APIKeyEnv)
	fmt.Fprintln(w, "")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches to a command and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	switch cmd {
	case "run":
		return runPipeline(ctx, args, stdout, stderr)
	case "stats":
		return runStats(ctx, args, stdout, stderr)
	case "serve":
		return runServe(ctx, args, stderr)
	case "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func runPipeline(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args)
	if err != nil {
		return fail(stderr, err)
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "YAML config file")
	cfg.RegisterFlags(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fail(stderr, &config.ConfigError{Field: "log_level", Reason: err.Error()})
	}
	defer func() { _ = log.Sync() }()

	// No mirror, broker or API connection is opened for an unusable config.
	if err := cfg.Validate(); err != nil {
		return fail(stderr, err)
	}

	mirrors, pub, cleanup := pipeline.Connect(ctx, cfg, log)
	defer cleanup()

	_, err = pipeline.Run(ctx, cfg, pipeline.Deps{
		Log:       log,
		Out:       stdout,
		Mirrors:   mirrors,
		Publisher: pub,
	})
	if err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

func runStats(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args)
	if err != nil {
		return fail(stderr, err)
	}

	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "YAML config file")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if _, err := os.Stat(cfg.DBPath); err != nil {
		return fail(stderr, fmt.Errorf("open %s: %w", cfg.DBPath, err))
	}
	db, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fail(stderr, err)
	}
	defer db.Close()

	counts, err := db.CountByDeparture(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	pipeline.PrintCounts(stdout, "SQL Query Result:", counts)
	return exitOK
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := loadConfig(args)
	if err != nil {
		return fail(stderr, err)
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "YAML config file")
	cfg.RegisterServeFlags(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if cfg.HTTP.AuthEnabled && len(cfg.HTTP.APIKeys) == 0 {
		return fail(stderr, &config.ConfigError{Field: "api_keys", Reason: "auth enabled without keys"})
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fail(stderr, &config.ConfigError{Field: "log_level", Reason: err.Error()})
	}
	defer func() { _ = log.Sync() }()

	db, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fail(stderr, err)
	}
	defer db.Close()

	m := metrics.NewPipeline("arrivals")

	// Runs are only offered when the pipeline config is complete.
	var runner api.Runner
	check := cfg
	if err := check.Validate(); err != nil {
		log.Warn("POST /api/v1/runs disabled", "error", err)
	} else {
		mirrors, pub, cleanup := pipeline.Connect(ctx, cfg, log)
		defer cleanup()
		runner = func(ctx context.Context) (*pipeline.Result, error) {
			return pipeline.Run(ctx, cfg, pipeline.Deps{
				Log:       log,
				Metrics:   m,
				Out:       io.Discard,
				Mirrors:   mirrors,
				Publisher: pub,
			})
		}
	}

	server := api.NewServer(db, api.Config{
		ChartPath:   cfg.ChartPath,
		AuthEnabled: cfg.HTTP.AuthEnabled,
		APIKeys:     cfg.HTTP.APIKeys,
		Runner:      runner,
		Metrics:     m.Handler(),
		Log:         log,
	})
	if err := server.ListenAndServe(ctx, cfg.HTTP.Listen); err != nil {
		return fail(stderr, fmt.Errorf("server: %w", err))
	}
	return exitOK
}

// loadConfig reads .env, the -config YAML file if one is named in args and
// the process environment.
func loadConfig(args []string) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	return config.Load(configPath(args), os.LookupEnv)
}

// configPath finds -config (or --config) in args before the full flag set
// is built, so the file can supply flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// parseFlags reports ok=false with the exit status when parsing stops the
// command, which includes -h.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	err := fs.Parse(args)
	switch {
	case err == nil:
		return exitOK, true
	case errors.Is(err, flag.ErrHelp):
		return exitOK, false
	default:
		return exitUsage, false
	}
}

// fail prints err and maps it to an exit status.
func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cerr *config.ConfigError
	if errors.As(err, &cerr) {
		return exitUsage
	}
	return exitFailure
}
