package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"matchcore/internal/bookservice"
	"matchcore/internal/domain"
	"matchcore/internal/eventlog"
	"matchcore/internal/instrument"
	"matchcore/internal/metrics"
	"matchcore/internal/orderbook"
	"matchcore/internal/priceparse"
	"matchcore/internal/queryserver"
	"matchcore/internal/report"
	"matchcore/internal/scenario"
	"matchcore/internal/sim"
)

const defaultRunsDir = "runs"
const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "demo":
		cmdDemo(os.Args[2:])
	case "replay":
		cmdReplay(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdReplay(args []string) {
	if err := runReplay(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReplay(args []string) error {
	runDir := ""
	runId := ""
	logPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--run-id":
			i++
			if i < len(args) {
				runId = args[i]
			}
		case "--run-dir":
			i++
			if i < len(args) {
				runDir = args[i]
			}
		case "--log":
			i++
			if i < len(args) {
				logPath = args[i]
			}
		}
	}
	if runId != "" && runDir == "" {
		runDir = filepath.Join(defaultRunsDir, runId)
	}
	if runDir == "" && logPath != "" {
		runDir = filepath.Dir(logPath)
	}
	if logPath == "" && runDir != "" {
		logPath = filepath.Join(runDir, "events.jsonl")
	}
	if logPath == "" {
		return fmt.Errorf("--run-id, --run-dir, or --log required")
	}

	configPath := filepath.Join(runDir, "config.json")
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("could not access config at %s: %w", configPath, err)
	}
	if _, err := os.Stat(logPath); err != nil {
		return fmt.Errorf("could not access event log at %s: %w", logPath, err)
	}

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("could not open config: %w", err)
	}
	defer configFile.Close()
	cfg := &scenario.Config{}
	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return fmt.Errorf("could not decode config: %w", err)
	}

	targetHash, err := simHashFile(logPath)
	if err != nil {
		return fmt.Errorf("could not hash target event log: %w", err)
	}

	fmt.Printf("Analyzing event log: %s\n", logPath)
	metricsByTrader, err := computeMetricsFromEventLog(logPath)
	if err != nil {
		return fmt.Errorf("could not recompute metrics from event log: %w", err)
	}
	fmt.Println("\nMetrics Summary (Replay):")
	report.PrintSummary(cfg, metricsByTrader)

	// Deterministically regenerate the run and compare event-log hashes.
	tmpDir, err := os.MkdirTemp("", "fairsim-replay-*")
	if err != nil {
		return fmt.Errorf("create temp directory for deterministic replay: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	replayRunner, err := sim.NewRunner(cfg, tmpDir)
	if err != nil {
		return fmt.Errorf("initialize deterministic replay runner: %w", err)
	}
	replayResult, err := replayRunner.Run()
	if err != nil {
		return fmt.Errorf("run deterministic replay: %w", err)
	}

	fmt.Printf("\nDeterministic replay log: %s\n", replayResult.LogPath)
	if targetHash == replayResult.LogHash {
		fmt.Printf("Event log hash matches deterministic replay: %s...\n", targetHash[:16])
	} else {
		fmt.Printf("Event log hash MISMATCH!\nTarget: %s...\nReplay: %s...\n", targetHash[:16], replayResult.LogHash[:16])
	}

	return nil
}

func simHashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h), nil
}

func computeMetricsFromEventLog(logPath string) (map[string]*metrics.TraderMetrics, error) {
	reader, err := eventlog.NewReader(logPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	return metrics.ComputeFromEvents(events), nil
}

func printUsage() {
	fmt.Println(`Usage: fairsim <command> [options]

Commands:
  run      Run a simulation scenario
  demo     Run all scenarios and generate consolidated report
  report   Generate a fairness report
  replay   Analyze a run log and verify deterministic replay
  serve    Host a live order book and expose it read-only over HTTP

Run options:
  --scenario <name>   Scenario: calm, thin, spike (required)
  --seed <n>          Random seed (default: 42)

Demo options:
  --seed <n>          Random seed (default: 42)

Report options:
  --last-run          Use the most recent run
  --run-dir <path>    Path to a specific run directory

Replay options:
  --run-id <id>       Run id (e.g. calm_seed42)
  --run-dir <path>    Path to a specific run directory
  --log <path>        Path to event log (defaults to <run-dir>/events.jsonl)

Serve options:
  --instrument <id>   Instrument id to host (default: XYZ)
  --addr <addr>       HTTP listen address (default: :8080)
  --tick-size <n>     Smallest allowed price increment, decimal (default: 0.0100)
  --lot-size <n>      Smallest allowed quantity increment, integer (default: 1)
  --seed-bid <price>  Seed a resting bid at this decimal price
  --seed-ask <price>  Seed a resting ask at this decimal price`)
}

// cmdServe hosts a live order book behind bookservice's single-writer
// goroutine and exposes it read-only over HTTP via queryserver. The
// hosted instrument's tick and lot size are registered with an
// instrument.Registry that bookservice consults to canonicalize every
// submitted order before it reaches the book. It runs until
// interrupted.
func cmdServe(args []string) {
	instrumentID := "XYZ"
	addr := ":8080"
	tickSize := "0.0100"
	lotSize := int64(1)
	seedBid := ""
	seedAsk := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--instrument":
			i++
			if i < len(args) {
				instrumentID = args[i]
			}
		case "--addr":
			i++
			if i < len(args) {
				addr = args[i]
			}
		case "--tick-size":
			i++
			if i < len(args) {
				tickSize = args[i]
			}
		case "--lot-size":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &lotSize)
			}
		case "--seed-bid":
			i++
			if i < len(args) {
				seedBid = args[i]
			}
		case "--seed-ask":
			i++
			if i < len(args) {
				seedAsk = args[i]
			}
		}
	}

	scaledTick, err := priceparse.Parse(tickSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: --tick-size: %v\n", err)
		os.Exit(1)
	}

	reg := instrument.NewRegistry()
	if err := reg.Register(instrument.Metadata{ID: instrumentID, TickSize: scaledTick, LotSize: lotSize}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: registering instrument: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	book := orderbook.New(instrumentID)
	svc := bookservice.New(ctx, book, bookservice.WithInstrumentRegistry(reg))

	if seedBid != "" {
		price, err := priceparse.Parse(seedBid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --seed-bid: %v\n", err)
			os.Exit(1)
		}
		order := &domain.Order{TraderID: "seed", Side: domain.Buy, Type: domain.LimitOrder, Price: price, OriginalQty: lotSize}
		if _, err := svc.Submit(order, time.Now().UnixNano()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: seeding bid: %v\n", err)
			os.Exit(1)
		}
	}
	if seedAsk != "" {
		price, err := priceparse.Parse(seedAsk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --seed-ask: %v\n", err)
			os.Exit(1)
		}
		order := &domain.Order{TraderID: "seed", Side: domain.Sell, Type: domain.LimitOrder, Price: price, OriginalQty: lotSize}
		if _, err := svc.Submit(order, time.Now().UnixNano()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: seeding ask: %v\n", err)
			os.Exit(1)
		}
	}

	srv := queryserver.New(svc)

	httpServer := &http.Server{Addr: addr, Handler: srv}
	go func() {
		log.Info().Str("addr", addr).Str("instrument", instrumentID).Msg("query server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("query server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("bookservice writer exited with error")
	}
}

func cmdRun(args []string) {
	scenarioName := ""
	seed := int64(42)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--scenario":
			i++
			if i < len(args) {
				scenarioName = args[i]
			}
		case "--seed":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &seed)
			}
		}
	}

	if scenarioName == "" {
		fmt.Fprintln(os.Stderr, "Error: --scenario is required (calm, thin, spike)")
		os.Exit(1)
	}

	cfg := scenario.GetConfig(scenarioName, seed)
	if cfg == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown scenario '%s'\n", scenarioName)
		os.Exit(1)
	}

	fmt.Printf("Running scenario: %s (seed=%d)\n", scenarioName, seed)

	runner, err := sim.NewRunner(cfg, defaultRunsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}

	result, err := runner.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running simulation: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Simulation complete.\n")
	fmt.Printf("  Events processed: %d\n", result.EventCount)
	fmt.Printf("  Trades executed:  %d\n", result.TradeCount)
	fmt.Printf("  Wall time:        %v\n", result.Duration)
	fmt.Printf("  Log hash:         %s\n", result.LogHash[:16]+"...")
	fmt.Printf("  Output:           %s\n", result.OutputDir)

	metricsByTrader, err := metrics.ComputeFromLog(result.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not compute metrics: %v\n", err)
		return
	}

	fmt.Println("\nMetrics Summary:")
	report.PrintSummary(cfg, metricsByTrader)

	reportGen := report.NewReport(cfg, metricsByTrader, result.OutputDir)
	if err := reportGen.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not generate report: %v\n", err)
	} else {
		fmt.Printf("\nReport written to: %s/report.md\n", result.OutputDir)
	}
}

func cmdReport(args []string) {
	runDir := ""
	lastRun := false
	runId := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--last-run":
			lastRun = true
		case "--run-dir":
			i++
			if i < len(args) {
				runDir = args[i]
			}
		case "--run-id":
			i++
			if i < len(args) {
				runId = args[i]
			}
		}
	}

	if lastRun {
		data, err := os.ReadFile(defaultRunsDir + "/last-run")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: no last run found. Run a simulation first.")
			os.Exit(1)
		}
		runDir = string(data)
	}

	if runId != "" && runDir == "" {
		runDir = defaultRunsDir + "/" + runId
	}

	if runDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --last-run, --run-dir, or --run-id required")
		os.Exit(1)
	}

	reportPath := runDir + "/report.md"
	data, err := os.ReadFile(reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))

	plotsPath := runDir + "/plots.txt"
	plotData, err := os.ReadFile(plotsPath)
	if err == nil {
		fmt.Println(string(plotData))
	}
}

func cmdDemo(args []string) {
	seed := int64(42)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--seed":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &seed)
			}
		}
	}

	scenarios := []string{"calm", "thin", "spike"}
	var results []report.ScenarioResult

	for _, name := range scenarios {
		cfg := scenario.GetConfig(name, seed)
		fmt.Printf("Running scenario: %s (seed=%d)...\n", name, seed)

		runner, err := sim.NewRunner(cfg, defaultRunsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing %s: %v\n", name, err)
			os.Exit(1)
		}

		result, err := runner.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running %s: %v\n", name, err)
			os.Exit(1)
		}

		fmt.Printf("  %s: %d events, %d trades, %v\n",
			name, result.EventCount, result.TradeCount, result.Duration)

		metricsByTrader, err := metrics.ComputeFromLog(result.LogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not compute metrics for %s: %v\n", name, err)
			continue
		}

		reportGen := report.NewReport(cfg, metricsByTrader, result.OutputDir)
		if err := reportGen.Generate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: report generation failed for %s: %v\n", name, err)
		}

		results = append(results, report.ScenarioResult{
			Config:  cfg,
			Metrics: metricsByTrader,
			RunDir:  result.OutputDir,
		})
	}

	report.PrintCrossSummary(results)

	crossReport := report.NewCrossReport(results, defaultRunsDir)
	if err := crossReport.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cross-scenario report failed: %v\n", err)
	} else {
		fmt.Printf("\nCross-scenario report: %s/cross-scenario-report.md\n", defaultRunsDir)
	}
}
