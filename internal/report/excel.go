// Package report generates operator-facing Excel exports from the JSONL
// event logs a persistence.FileGateway writes to disk.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/xuri/excelize/v2"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// styles holds the shared formatting used across every sheet.
type styles struct {
	header  int
	percent int
	base    int
	warn    int
	crit    int
}

// WriteFleetReport reads every JSONL log under stateDir and renders a
// multi-sheet workbook of fuel metrics, refuel events, theft events, and
// DTC events at outPath.
func WriteFleetReport(stateDir, outPath string) error {
	fx := excelize.NewFile()
	defer fx.Close()

	st, err := buildStyles(fx)
	if err != nil {
		return fmt.Errorf("build styles: %w", err)
	}

	const fuelSheet = "Fuel Metrics"
	const refuelSheet = "Refuel Events"
	const theftSheet = "Theft Events"
	const dtcSheet = "DTC Events"
	const rulSheet = "RUL Predictions"

	fx.SetSheetName(fx.GetSheetName(0), fuelSheet)
	fx.NewSheet(refuelSheet)
	fx.NewSheet(theftSheet)
	fx.NewSheet(dtcSheet)
	fx.NewSheet(rulSheet)

	var metrics []types.FuelMetric
	if err := readJSONL(filepath.Join(stateDir, "fuel_metrics.jsonl"), &metrics); err != nil {
		return err
	}
	if err := writeFuelSheet(fx, fuelSheet, metrics, st); err != nil {
		return err
	}

	var refuels []types.RefuelEvent
	if err := readJSONL(filepath.Join(stateDir, "refuel_events.jsonl"), &refuels); err != nil {
		return err
	}
	if err := writeRefuelSheet(fx, refuelSheet, refuels, st); err != nil {
		return err
	}

	var thefts []types.TheftEvent
	if err := readJSONL(filepath.Join(stateDir, "theft_events.jsonl"), &thefts); err != nil {
		return err
	}
	if err := writeTheftSheet(fx, theftSheet, thefts, st); err != nil {
		return err
	}

	var dtcs []types.DTCEvent
	if err := readJSONL(filepath.Join(stateDir, "dtc_events.jsonl"), &dtcs); err != nil {
		return err
	}
	if err := writeDTCSheet(fx, dtcSheet, dtcs, st); err != nil {
		return err
	}

	var rulPredictions []types.RULPrediction
	if err := readJSONL(filepath.Join(stateDir, "rul_predictions.jsonl"), &rulPredictions); err != nil {
		return err
	}
	if err := writeRULSheet(fx, rulSheet, rulPredictions, st); err != nil {
		return err
	}

	if dir := filepath.Dir(outPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return fx.SaveAs(outPath)
}

// readJSONL appends every line of path, decoded as T, onto out. A missing
// file is not an error: that event type just never happened this run.
func readJSONL[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		*out = append(*out, v)
	}
	return scanner.Err()
}

func buildStyles(fx *excelize.File) (styles, error) {
	var st styles
	var err error

	st.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return st, err
	}

	st.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt:    9,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return st, err
	}

	st.base, err = fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return st, err
	}

	st.warn, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "9C5700"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFEB9C"}, Pattern: 1},
	})
	if err != nil {
		return st, err
	}

	st.crit, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "FFFFFF", Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C00000"}, Pattern: 1},
	})
	return st, err
}

func writeHeaderRow(fx *excelize.File, sheet string, headers []string, st styles) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, st.header)
	}
}

func writeFuelSheet(fx *excelize.File, sheet string, metrics []types.FuelMetric, st styles) error {
	headers := []string{
		"Truck", "Timestamp", "Sensor %", "Kalman %", "MPG Instant", "MPG EMA",
		"MPG SNR", "ECU Status", "ECU Deviation %", "Confidence", "Confidence Level",
		"Interpolated", "Allowed",
	}
	writeHeaderRow(fx, sheet, headers, st)

	for i, m := range metrics {
		row := i + 2
		values := []interface{}{
			m.TruckID,
			m.Timestamp.Format("2006-01-02 15:04:05"),
			m.SensorFuelPct,
			m.KalmanFuelPct,
			m.MPGInstant,
			m.MPGEma,
			m.MPGSnr,
			string(m.ECUValidationStatus),
			m.ECUDeviationPct,
			m.ConfidenceScore,
			string(m.ConfidenceLevel),
			m.IsInterpolated,
			m.IsAllowed,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, st.base)
		}
	}

	if len(metrics) > 0 {
		fx.AutoFilter(sheet, fmt.Sprintf("A1:M%d", len(metrics)+1), []excelize.AutoFilterOptions{})
	}
	return nil
}

func writeRefuelSheet(fx *excelize.File, sheet string, events []types.RefuelEvent, st styles) error {
	headers := []string{
		"Truck", "Timestamp", "Before %", "After %", "Gallons Added",
		"Detection Method", "Confidence", "Latitude", "Longitude",
	}
	writeHeaderRow(fx, sheet, headers, st)

	for i, e := range events {
		row := i + 2
		values := []interface{}{
			e.TruckID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.FuelBeforePct,
			e.FuelAfterPct,
			e.GallonsAdded,
			string(e.DetectionMethod),
			e.Confidence,
			e.Latitude,
			e.Longitude,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, st.base)
		}
	}

	if len(events) > 0 {
		fx.AutoFilter(sheet, fmt.Sprintf("A1:I%d", len(events)+1), []excelize.AutoFilterOptions{})
	}
	return nil
}

func writeTheftSheet(fx *excelize.File, sheet string, events []types.TheftEvent, st styles) error {
	headers := []string{
		"Truck", "Timestamp", "Fuel Drop (gal)", "Drop %", "Classification",
		"Confidence 0-100", "Est. Loss Min (gal)", "Est. Loss Max (gal)",
	}
	writeHeaderRow(fx, sheet, headers, st)

	for i, e := range events {
		row := i + 2
		values := []interface{}{
			e.TruckID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.FuelDropGal,
			e.DropPct,
			string(e.Classification),
			e.Confidence0To100,
			e.EstimatedLossMinGal,
			e.EstimatedLossMaxGal,
		}
		cellStyle := st.base
		if e.Classification == types.TheftConfirmed {
			cellStyle = st.crit
		} else if e.Classification == types.TheftSuspected {
			cellStyle = st.warn
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, cellStyle)
		}
	}

	if len(events) > 0 {
		fx.AutoFilter(sheet, fmt.Sprintf("A1:H%d", len(events)+1), []excelize.AutoFilterOptions{})
	}
	return nil
}

func writeRULSheet(fx *excelize.File, sheet string, predictions []types.RULPrediction, st styles) error {
	headers := []string{
		"Truck", "Component", "Model", "Current Score", "RUL Days", "RUL Miles",
		"Confidence R2", "Est. Cost", "Recommended Service", "Status", "Computed At",
	}
	writeHeaderRow(fx, sheet, headers, st)

	for i, p := range predictions {
		row := i + 2
		values := []interface{}{
			p.TruckID,
			p.ComponentID,
			string(p.Model),
			p.CurrentScore,
			p.RULDays,
			p.RULMiles,
			p.ConfidenceR2,
			p.EstimatedCost,
			p.RecommendedServiceDate.Format("2006-01-02"),
			string(p.Status),
			p.ComputedAt.Format("2006-01-02 15:04:05"),
		}
		cellStyle := st.base
		switch p.Status {
		case types.RULStatusCritical:
			cellStyle = st.crit
		case types.RULStatusWarning:
			cellStyle = st.warn
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, cellStyle)
		}
	}

	if len(predictions) > 0 {
		fx.AutoFilter(sheet, fmt.Sprintf("A1:K%d", len(predictions)+1), []excelize.AutoFilterOptions{})
	}
	return nil
}

func writeDTCSheet(fx *excelize.File, sheet string, events []types.DTCEvent, st styles) error {
	headers := []string{
		"Truck", "Timestamp", "DTC Code", "SPN", "FMI", "Severity", "Category",
		"Description", "OEM", "Action Required", "Status",
	}
	writeHeaderRow(fx, sheet, headers, st)

	for i, e := range events {
		row := i + 2
		values := []interface{}{
			e.TruckID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.DTCCode,
			e.SPN,
			e.FMI,
			string(e.Severity),
			e.Category,
			e.DescriptionEs,
			e.OEM,
			e.ActionRequired,
			string(e.Status),
		}
		cellStyle := st.base
		switch e.Severity {
		case types.SeverityCritical:
			cellStyle = st.crit
		case types.SeverityHigh:
			cellStyle = st.warn
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, cellStyle)
		}
	}

	if len(events) > 0 {
		fx.AutoFilter(sheet, fmt.Sprintf("A1:K%d", len(events)+1), []excelize.AutoFilterOptions{})
	}
	return nil
}
