package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/fleetreg"
	"github.com/fleetpulse/telemetry-core/internal/j1939"
	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/persistence"
	"github.com/fleetpulse/telemetry-core/internal/scheduler"
	"github.com/fleetpulse/telemetry-core/internal/wialon"
)

func main() {
	envFile := flag.String("env", ".env", "Environment file path")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: could not load .env file (%v), checking environment variables...", err)
	}

	cfg := config.Load()

	log.Println("🚛 Fleet Telemetry Core starting...")
	printStartupTable(cfg)

	fleetLog, err := logger.NewLogger("fleetd")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fleetLog.Close()

	registry, err := fleetreg.Load(cfg.Registry.TanksFile, cfg.Registry.CalibrationFile, fleetLog)
	if err != nil {
		log.Fatalf("Failed to load fleet registry: %v", err)
	}
	fleetLog.Info("loaded %d trucks from registry", len(registry.TruckIDs()))

	dtcStore, err := j1939.LoadFromFile(cfg.Registry.J1939DataFile)
	if err != nil {
		fleetLog.Warning("j1939 data file load failed, continuing with seed table only: %v", err)
	}

	gw, err := persistence.NewFileGateway(cfg.StateDir, fleetLog)
	if err != nil {
		log.Fatalf("Failed to open persistence gateway: %v", err)
	}

	source := wialon.NewPollingSource(cfg.Wialon.BaseURL, cfg.Wialon.PollTimeout, fleetLog)

	sched := scheduler.New(cfg, registry, source, gw, dtcStore, fleetLog)

	go serveMonitoring(cfg, fleetLog)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 Shutdown signal received...")
		cancel()
	}()

	fleetLog.Info("fleet scheduler running, poll interval %s", cfg.Wialon.PollInterval)
	if err := sched.Run(ctx, cfg.Wialon.PollInterval); err != nil {
		log.Fatalf("Scheduler exited with error: %v", err)
	}

	fmt.Println("✅ Fleet telemetry core stopped successfully")
}

// serveMonitoring exposes the Prometheus metrics endpoint; errors here are
// logged, not fatal, since the fleet pipeline itself doesn't depend on it.
func serveMonitoring(cfg *config.Config, log *logger.Logger) {
	if cfg.Monitoring.PrometheusPort <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	log.Info("serving prometheus metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped: %v", err)
	}
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

func printStartupTable(cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FLEET TELEMETRY CORE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🌎 Environment", cfg.Environment},
		{"📡 Wialon Endpoint", cfg.Wialon.BaseURL},
		{"⏰ Poll Interval", cfg.Wialon.PollInterval.String()},
		{"💾 State Dir", cfg.StateDir},
		{"📊 Prometheus Port", fmt.Sprintf("%d", cfg.Monitoring.PrometheusPort)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
