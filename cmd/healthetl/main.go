package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthetl/internal/app"
	"healthetl/internal/operations"
	"healthetl/pkg/contracts"
)

// options are the parsed command line flags
type options struct {
	configPath string
	once       bool
	date       time.Time
	dryRun     bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, opts.configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			application.Logger.Error("Shutdown error", slog.String("error", err.Error()))
		}
	}()

	if opts.once {
		resp, err := application.RunOnce(ctx, opts.date, opts.dryRun)
		if resp != nil {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			enc.Encode(resp)
		}
		if err != nil {
			application.Logger.Error("Run failed", slog.String("error", err.Error()))
			return 1
		}
		return 0
	}

	if err := application.Serve(ctx); err != nil {
		application.Logger.Error("Application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var (
		opts    options
		dateStr string
	)
	fs := flag.NewFlagSet("healthetl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML config file (defaults to ./healthetl.yaml if present)")
	fs.BoolVar(&opts.once, "once", false, "run the pipeline once and exit instead of serving")
	fs.StringVar(&dateStr, "date", "", "run date (YYYY-MM-DD) for -once; defaults to today in the schedule timezone")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "run every stage but discard the published objects")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if dateStr != "" {
		date, err := time.Parse(operations.RunDateLayout, dateStr)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -date %q: want YYYY-MM-DD\n", dateStr)
			return opts, err
		}
		opts.date = date
	}
	if !opts.once && (dateStr != "" || opts.dryRun) {
		err := fmt.Errorf("-date and -dry-run require -once")
		fmt.Fprintln(stderr, err)
		return opts, err
	}
	return opts, nil
}
