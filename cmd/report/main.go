package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/report"
)

// report exports a fleet's persisted JSONL event logs into a single,
// operator-readable workbook -- one sheet per event type.
func main() {
	stateDir := flag.String("state-dir", "", "Persistence state directory (defaults to STATE_DIR)")
	outPath := flag.String("out", "fleet_report.xlsx", "Output workbook path")
	flag.Parse()

	cfg := config.Load()
	dir := *stateDir
	if dir == "" {
		dir = cfg.StateDir
	}

	fmt.Printf("📊 Generating fleet report from %s\n", dir)

	if err := report.WriteFleetReport(dir, *outPath); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	printResultTable(dir, *outPath)
}

func printResultTable(stateDir, outPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FLEET REPORT")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📂 Source State Dir", stateDir},
		{"📄 Workbook", outPath},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 15, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println("✅ Report written")
}
