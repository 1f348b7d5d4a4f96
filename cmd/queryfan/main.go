package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/queryfan/queryfan/internal/api"
	"github.com/queryfan/queryfan/internal/config"
	"github.com/queryfan/queryfan/internal/dispatch"
	"github.com/queryfan/queryfan/internal/events"
	"github.com/queryfan/queryfan/internal/export"
	"github.com/queryfan/queryfan/internal/lock"
	"github.com/queryfan/queryfan/internal/log"
	"github.com/queryfan/queryfan/internal/queue"
	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
	"github.com/queryfan/queryfan/internal/worker"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultConfigPath = "queryfan.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "list":
		return runList(args)
	case "export":
		return runExport(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `queryfan - fan one query out to many data stores

Usage:
  queryfan start  [--config path]            Run the service (workers + API)
  queryfan list   [--config path]            Show recent queries
  queryfan export <id> [--config path] [--out file]
                                             Export a query's results as xlsx
  queryfan config check [--config path]      Validate configuration
  queryfan config hash  [--config path]      Print the config file checksum
  queryfan version [--json]                  Print version metadata
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	if hash, err := config.ComputeBlake3Hash(*configPath); err == nil {
		logger.Info("configuration loaded", "path", *configPath, "blake3", hash)
	}

	lck, err := lock.Acquire(cfg.State.Path + ".lock")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock error: %v\n", err)
		return 1
	}
	defer func() { _ = lck.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	st := store.New(db)

	registry := stand.BuildRegistry(cfg.Stands)
	defer registry.Close()

	q := queue.New(cfg.Service.MaxQueueSize)
	hub := events.NewHub(256)
	dispatcher := dispatch.New(registry, q, st, hub)

	pool := worker.New(cfg.Service.NumWorkers, q, registry, st, hub)
	pool.Start(ctx)

	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, dispatcher, st, registry, q, hub, log.WithComponent("api"))
		go func() { apiErr <- server.Start(ctx) }()
	}

	logger.Info("queryfan started",
		"stands", registry.Len(),
		"workers", cfg.Service.NumWorkers,
		"queue_capacity", q.Cap(),
		"api_enabled", cfg.API.Enabled,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErr:
		if err != nil && !strings.Contains(err.Error(), context.Canceled.Error()) {
			logger.Error("API server failed", "error", err)
		}
		stop()
	}

	pool.Wait()
	logger.Info("queryfan stopped")
	return 0
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup("ERROR")

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	rows, err := store.New(db).ListRecent(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing error: %v\n", err)
		return 1
	}
	if len(rows) == 0 {
		fmt.Println("No queries recorded yet.")
		return 0
	}

	fmt.Printf("%-6s  %-20s  %-53s  %s\n", "ID", "SUBMITTED", "QUERY", "PROGRESS")
	for _, row := range rows {
		fmt.Printf("%-6d  %-20s  %-53s  %s\n", row.ID, row.CreatedAt, row.Preview, row.Progress)
	}
	return 0
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	outPath := fs.String("out", "", "Output file (default query_<id>.xlsx)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: queryfan export <id> [--config path] [--out file]")
		return 1
	}
	queryID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || queryID < 1 {
		fmt.Fprintln(os.Stderr, "Query id must be a positive integer")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup("ERROR")

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	st := store.New(db)

	syntax, content, err := st.QuerySummary(ctx, queryID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	results, err := st.ResultsFor(ctx, queryID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	workbook, err := export.Workbook(syntax, content, results)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export error: %v\n", err)
		return 1
	}
	defer workbook.Close()

	path := *outPath
	if path == "" {
		path = fmt.Sprintf("query_%d.xlsx", queryID)
	}
	if err := workbook.SaveAs(path); err != nil {
		fmt.Fprintf(os.Stderr, "Save error: %v\n", err)
		return 1
	}
	fmt.Printf("Exported query %d to %s (%d stand result(s))\n", queryID, path, len(results))
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: queryfan config <check|hash> [--config path]")
		return 1
	}
	verb := args[0]
	rest := args[1:]

	fs := flag.NewFlagSet("config "+verb, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	switch verb {
	case "check":
		return runConfigCheck(*configPath)
	case "hash":
		hash, err := config.ComputeBlake3Hash(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Hash error: %v\n", err)
			return 1
		}
		fmt.Printf("%s  %s\n", hash, *configPath)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config verb: %s\n", verb)
		return 1
	}
}

func runConfigCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup("ERROR")

	registry := stand.BuildRegistry(cfg.Stands)
	defer registry.Close()

	fmt.Printf("Config OK: %s\n", configPath)
	fmt.Printf("  queue capacity: %d, workers: %d\n", cfg.Service.MaxQueueSize, cfg.Service.NumWorkers)
	fmt.Printf("  stands: %d of %d configured entries usable\n", registry.Len(), len(cfg.Stands))
	for _, st := range registry.All() {
		fmt.Printf("    %-20s %-10s %s\n", st.Name, st.Vendor, st.Syntax.String())
	}
	if registry.Len() < len(cfg.Stands) {
		for name := range cfg.Stands {
			if _, ok := registry.Get(name); !ok {
				fmt.Printf("    %-20s SKIPPED (misconfigured)\n", name)
			}
		}
		return 1
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    gitCommit,
		BuildTime: buildDate,
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("queryfan %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}
