// Package chart builds the blood pressure trend chart.
package chart

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

// Axis padding in mmHg.
const (
	DataPadding  = 10 // Above the highest and below the lowest value
	LimitPadding = 20 // Above the systolic limit
	FloorCeiling = 40 // The axis never starts higher than this
)

// Series colors.
const (
	ColorSystolic  = "#ef4444"
	ColorDiastolic = "#3b82f6"
	ColorPulse     = "#10b981"
	ColorLimit     = "rgba(128, 128, 128, 0.6)"
)

// Config configures chart rendering.
type Config struct {
	Title    string
	Width    string
	Height   string
	Timezone string // Timezone for the x axis labels
}

// NewConfig creates a chart config with sensible defaults.
func NewConfig(title string) Config {
	cfg := Config{Title: title}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults applies default values to zero fields.
func (c *Config) ApplyDefaults() {
	if c.Title == "" {
		c.Title = "Blood Pressure"
	}
	if c.Width == "" {
		c.Width = "100%"
	}
	if c.Height == "" {
		c.Height = "350px"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Domain returns the y axis range for a set of readings. The range always
// includes the systolic limit plus padding so the threshold line is visible,
// and never goes below zero.
func Domain(readings []bloodpressure.Reading, limits bloodpressure.Limits) (yMin, yMax int) {
	yMax = limits.SysMax + LimitPadding
	yMin = FloorCeiling

	dataMin, dataMax, ok := valueRange(readings)
	if !ok {
		return yMin, yMax
	}

	yMax = max(dataMax+DataPadding, yMax)
	yMin = max(0, min(dataMin-DataPadding, FloorCeiling))
	return yMin, yMax
}

// valueRange returns the lowest and highest systolic, diastolic or pulse
// value across non-empty readings.
func valueRange(readings []bloodpressure.Reading) (lo, hi int, ok bool) {
	for _, r := range readings {
		if r.IsEmpty() {
			continue
		}
		for _, v := range []int{r.Systolic, r.Diastolic, r.Pulse} {
			if !ok {
				lo, hi, ok = v, v, true
				continue
			}
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return lo, hi, ok
}

// SortAscending returns non-empty readings oldest first, ordered by
// measurement date and then measurement time. Readings without a date go last.
func SortAscending(readings []bloodpressure.Reading) []bloodpressure.Reading {
	sorted := make([]bloodpressure.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.IsEmpty() {
			sorted = append(sorted, r)
		}
	}
	slices.SortStableFunc(sorted, func(a, b bloodpressure.Reading) int {
		ka, okA := sortKey(a)
		kb, okB := sortKey(b)
		switch {
		case okA && okB:
			return ka.Compare(kb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// sortKey combines the calendar date with the clock time, defaulting to midnight.
func sortKey(r bloodpressure.Reading) (time.Time, bool) {
	ts, ok := r.EffectiveTimestamp()
	if !ok {
		return time.Time{}, false
	}
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	clock, err := time.Parse(bloodpressure.ClockLayout, truncateClock(r.MeasurementTime))
	if err != nil {
		return day, true
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), true
}

// truncateClock reduces "15:04:05" to "15:04".
func truncateClock(s string) string {
	if len(s) > len(bloodpressure.ClockLayout) {
		return s[:len(bloodpressure.ClockLayout)]
	}
	return s
}

// RenderTrend writes an HTML line chart of systolic, diastolic and pulse
// values with dashed lines at the age-group limits.
func RenderTrend(w io.Writer, readings []bloodpressure.Reading, limits bloodpressure.Limits, cfg Config) error {
	cfg.ApplyDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	sorted := SortAscending(readings)
	yMin, yMax := Domain(sorted, limits)

	xAxis := make([]string, 0, len(sorted))
	systolic := make([]opts.LineData, 0, len(sorted))
	diastolic := make([]opts.LineData, 0, len(sorted))
	pulse := make([]opts.LineData, 0, len(sorted))

	for _, r := range sorted {
		xAxis = append(xAxis, axisLabel(r, loc))
		systolic = append(systolic, opts.LineData{Value: r.Systolic})
		diastolic = append(diastolic, opts.LineData{Value: r.Diastolic})
		pulse = append(pulse, opts.LineData{Value: r.Pulse})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: cfg.Title,
			Width:     cfg.Width,
			Height:    cfg.Height,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    cfg.Title,
			Subtitle: fmt.Sprintf("%s: up to %d/%d mmHg", limits.AgeGroup, limits.SysMax, limits.DiaMax),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show: opts.Bool(true),
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
		}),
		charts.WithColorsOpts(opts.Colors{ColorSystolic, ColorDiastolic, ColorPulse}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "mmHg / bpm",
			Min:  yMin,
			Max:  yMax,
		}),
	)

	limitLines := charts.SeriesOpts(func(s *charts.SingleSeries) {
		s.MarkLines = &opts.MarkLines{
			Data: []interface{}{
				opts.MarkLineNameYAxisItem{Name: "Systolic limit", YAxis: limits.SysMax},
				opts.MarkLineNameYAxisItem{Name: "Diastolic limit", YAxis: limits.DiaMax},
			},
			MarkLineStyle: opts.MarkLineStyle{
				Symbol: []string{"none", "none"},
				LineStyle: &opts.LineStyle{
					Color: ColorLimit,
					Type:  "dashed",
					Width: 1.5,
				},
			},
		}
	})

	lineOpts := charts.WithLineChartOpts(opts.LineChart{
		ShowSymbol: opts.Bool(true),
	})

	line.SetXAxis(xAxis).
		AddSeries("Systolic", systolic, lineOpts, limitLines).
		AddSeries("Diastolic", diastolic, lineOpts).
		AddSeries("Pulse", pulse, lineOpts)

	return line.Render(w)
}

// axisLabel formats a reading's date for the x axis.
func axisLabel(r bloodpressure.Reading, loc *time.Location) string {
	ts, ok := r.EffectiveTimestamp()
	if !ok {
		return r.MeasurementTime
	}
	label := ts.In(loc).Format("2 Jan")
	if r.MeasurementTime != "" {
		label += " " + truncateClock(r.MeasurementTime)
	}
	return label
}
