// Package export writes readings to an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/reconcile"
)

// Sheet names.
const (
	SheetReadings = "Readings"
	SheetSummary  = "Summary"
)

// ReadingsHeader is the header row of the readings sheet.
var ReadingsHeader = []string{"Date", "Time", "Systolic", "Diastolic", "Pulse", "MAP", "Status", "Notes"}

var columnWidths = []float64{
	12, // Date
	8,  // Time
	10, // Systolic
	10, // Diastolic
	8,  // Pulse
	8,  // MAP
	10, // Status
	30, // Notes
}

// Status colors, matching the chart.
const (
	colorElevated = "#DC2626"
	colorNormal   = "#16A34A"
)

// WriteWorkbook writes readings, newest first, and a summary sheet. Empty
// readings are skipped. Dates are shown in loc, UTC when nil.
func WriteWorkbook(w io.Writer, person bloodpressure.Person, readings []bloodpressure.Reading, limits bloodpressure.Limits, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetReadings)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	captured := reconcile.SortDescending(reconcile.WithoutEmpty(readings))
	if err := writeReadings(f, styles, captured, limits, loc); err != nil {
		return err
	}
	if err := writeSummary(f, styles, person, captured, limits, loc); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type styles struct {
	header   int
	elevated int
	normal   int
	label    int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}

	s.elevated, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Color: colorElevated}})
	if err != nil {
		return s, fmt.Errorf("failed to create status style: %w", err)
	}
	s.normal, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: colorNormal}})
	if err != nil {
		return s, fmt.Errorf("failed to create status style: %w", err)
	}
	s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return s, fmt.Errorf("failed to create label style: %w", err)
	}
	return s, nil
}

func writeReadings(f *excelize.File, st styles, readings []bloodpressure.Reading, limits bloodpressure.Limits, loc *time.Location) error {
	for col, header := range ReadingsHeader {
		if err := setCell(f, SheetReadings, col+1, 1, header, st.header); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetReadings, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range readings {
		row := i + 2
		date, clock := dateAndClock(r, loc)
		values := []any{date, clock, r.Systolic, r.Diastolic, r.Pulse, r.MeanArterialPressure()}
		for col, v := range values {
			if err := setCell(f, SheetReadings, col+1, row, v, 0); err != nil {
				return err
			}
		}

		status := r.Status(limits)
		statusStyle := st.normal
		if status == bloodpressure.StatusElevated {
			statusStyle = st.elevated
		}
		if err := setCell(f, SheetReadings, 7, row, string(status), statusStyle); err != nil {
			return err
		}
		if r.Notes != "" {
			if err := setCell(f, SheetReadings, 8, row, r.Notes, 0); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(SheetReadings, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, st styles, person bloodpressure.Person, readings []bloodpressure.Reading, limits bloodpressure.Limits, loc *time.Location) error {
	summary := reconcile.Summarize(readings, reconcile.DefaultWindow)

	elevated := 0
	for _, r := range readings {
		if r.Status(limits) == bloodpressure.StatusElevated {
			elevated++
		}
	}

	last := "-"
	if summary.LastReading != nil {
		last = fmt.Sprintf("%d/%d", summary.LastReading.Systolic, summary.LastReading.Diastolic)
	}

	rows := [][2]any{
		{"Name", person.FullName},
		{"Age group", limits.AgeGroup},
		{"Limit (mmHg)", fmt.Sprintf("%d/%d", limits.SysMax, limits.DiaMax)},
		{"Readings", summary.TotalCount},
		{"Elevated", elevated},
		{"Last reading", last},
		{fmt.Sprintf("Average pulse (last %d)", summary.Window), summary.AveragePulse},
		{"Exported", time.Now().In(loc).Format("2006-01-02 15:04")},
	}
	for i, kv := range rows {
		if err := setCell(f, SheetSummary, 1, i+1, kv[0], st.label); err != nil {
			return err
		}
		if err := setCell(f, SheetSummary, 2, i+1, kv[1], 0); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(SheetSummary, "B", "B", 24)
}

// dateAndClock returns the reading's date in loc and its clock time. The
// recorded clock time is preferred since it is what the monitor displayed.
func dateAndClock(r bloodpressure.Reading, loc *time.Location) (string, string) {
	ts, ok := r.EffectiveTimestamp()
	if !ok {
		return "", r.MeasurementTime
	}
	local := ts.In(loc)
	clock := r.MeasurementTime
	if clock == "" {
		clock = local.Format(bloodpressure.ClockLayout)
	}
	if len(clock) > len(bloodpressure.ClockLayout) {
		clock = clock[:len(bloodpressure.ClockLayout)]
	}
	return local.Format(bloodpressure.DateLayout), clock
}

// setCell sets a value and, when style is non-zero, its style.
func setCell(f *excelize.File, sheet string, col, row int, value any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	if style != 0 {
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set style of %s: %w", cell, err)
		}
	}
	return nil
}
