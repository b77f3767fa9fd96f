package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/chart"
	"github.com/jwulff/bptrack/internal/export"
	"github.com/jwulff/bptrack/internal/monitor"
	"github.com/jwulff/bptrack/internal/reconcile"
)

func runRecords(a *app, args []string) error {
	fs := flag.NewFlagSet("records", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 20, "records per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	result, err := a.client.ListRecords(ctx, api.ListOptions{Page: *page, PerPage: *perPage})
	if err != nil {
		return err
	}

	limits := a.session.User.Person().Limits(time.Now())
	printReadings(api.Readings(result.Records), limits, a.cfg.Location())
	p := result.Pagination
	fmt.Printf("\nPage %d of %d (%d readings)\n", p.CurrentPage, p.TotalPages, p.Total)
	return nil
}

func runAdd(a *app, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: bptrack add <sys> <dia> <pulse> [-date YYYY-MM-DD] [-time HH:MM] [-notes text]")
	}
	values := make([]int, 3)
	for i, arg := range args[:3] {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid value %q", arg)
		}
		values[i] = v
	}

	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	date := fs.String("date", "", "measurement date, YYYY-MM-DD (default today)")
	clock := fs.String("time", "", "measurement time, HH:MM (default now)")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args[3:]); err != nil {
		return err
	}

	reading, err := bloodpressure.NewManualReading(values[0], values[1], values[2], *date, *clock, a.cfg.Location(), *notes, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}
	saved, err := m.AddManual(ctx, reading)
	if err != nil {
		return err
	}
	printSaved(saved, m)
	return nil
}

func runScan(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("image path required")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Reading monitor display...")
	saved, err := m.CaptureImage(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	printSaved(saved, m)
	return nil
}

func runDelete(a *app, args []string) error {
	id, err := parseID(args, "reading id")
	if err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}
	if err := m.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted reading %d\n", id)
	return nil
}

func runSummary(a *app, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	window := fs.Int("window", a.cfg.Window, "readings to average, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}
	printSummary(m, *window)
	return nil
}

func runStats(a *app, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	days := fs.Int("days", 30, "period in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := a.context()
	defer cancel()

	stats, err := a.client.StatsSummary(ctx, *days)
	if err != nil {
		return err
	}

	fmt.Printf("Last %d days (%d of %d readings)\n\n", stats.PeriodDays, stats.TotalRecordsPeriod, stats.TotalRecordsAllTime)
	fmt.Println("             avg   min   max")
	for _, row := range []struct {
		name string
		s    api.MetricStats
	}{
		{"Systolic", stats.Systolic},
		{"Diastolic", stats.Diastolic},
		{"Pulse", stats.Pulse},
	} {
		fmt.Printf("  %-9s %5.1f %5d %5d\n", row.name, row.s.Avg, row.s.Min, row.s.Max)
	}
	return nil
}

func runChart(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("output path required")
	}

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}

	cfg := chart.NewConfig("Blood Pressure - " + m.Person().FullName)
	cfg.Timezone = a.cfg.Timezone

	return writeFile(args[0], func(f *os.File) error {
		return chart.RenderTrend(f, m.Readings(), m.Limits(time.Now()), cfg)
	})
}

func runExport(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("output path required")
	}

	ctx, cancel := a.context()
	defer cancel()

	m, err := a.monitor(ctx)
	if err != nil {
		return err
	}

	readings, err := m.History(ctx)
	if err != nil {
		a.logger.Warn("failed to fetch full history, exporting cached readings", zap.Error(err))
		readings = m.Readings()
	}

	return writeFile(args[0], func(f *os.File) error {
		return export.WriteWorkbook(f, m.Person(), readings, m.Limits(time.Now()), a.cfg.Location())
	})
}

func runWatch(a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", 5*time.Minute, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval < time.Minute {
		return fmt.Errorf("interval must be at least a minute")
	}

	ctx, cancel := a.context()
	m, err := a.monitor(ctx)
	cancel()
	if err != nil {
		return err
	}

	fmt.Printf("Watching readings, refreshing every %s\n", *interval)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Handle Ctrl+C gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	printWatchLine(m, a.cfg.Window)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			err := m.Refresh(ctx)
			cancel()
			if err != nil {
				fmt.Printf("[%s] Warning: %v\n", time.Now().Format("15:04:05"), err)
				continue
			}
			printWatchLine(m, a.cfg.Window)
		case <-sigChan:
			fmt.Println("\nStopping...")
			return nil
		}
	}
}

func printWatchLine(m *monitor.Monitor, window int) {
	now := time.Now()
	summary := m.Summary(window)
	if summary.LastReading == nil {
		fmt.Printf("[%s] No readings yet\n", now.Format("15:04:05"))
		return
	}
	last := *summary.LastReading
	fmt.Printf("[%s] Last %d/%d %s, pulse %d, average pulse %d over %d\n",
		now.Format("15:04:05"), last.Systolic, last.Diastolic, last.Status(m.Limits(now)),
		last.Pulse, summary.AveragePulse, summary.Window)
}

func printSummary(m *monitor.Monitor, window int) {
	now := time.Now()
	limits := m.Limits(now)
	summary := m.Summary(window)

	fmt.Printf("%s (%s, up to %d/%d mmHg)\n\n", m.Person().FullName, limits.AgeGroup, limits.SysMax, limits.DiaMax)
	if summary.LastReading == nil {
		fmt.Println("No readings yet. Add one with 'bptrack add' or 'bptrack scan'.")
		return
	}

	last := *summary.LastReading
	fmt.Printf("Last reading:   %d/%d mmHg, pulse %d (%s)\n", last.Systolic, last.Diastolic, last.Pulse, last.Status(limits))
	fmt.Printf("Average pulse:  %d bpm over the last %d readings\n", summary.AveragePulse, summary.Window)
	fmt.Printf("Total readings: %d\n", summary.TotalCount)
}

func printSaved(r bloodpressure.Reading, m *monitor.Monitor) {
	fmt.Printf("Saved reading %d: %d/%d mmHg, pulse %d (%s)\n",
		r.ID, r.Systolic, r.Diastolic, r.Pulse, r.Status(m.Limits(time.Now())))
}

func printReadings(readings []bloodpressure.Reading, limits bloodpressure.Limits, loc *time.Location) {
	sorted := reconcile.SortDescending(reconcile.WithoutEmpty(readings))
	if len(sorted) == 0 {
		fmt.Println("No readings")
		return
	}

	fmt.Println("  ID      Date        Time   Sys  Dia  Pulse  MAP  Status")
	for _, r := range sorted {
		date := ""
		if ts, ok := r.EffectiveTimestamp(); ok {
			date = ts.In(loc).Format(bloodpressure.DateLayout)
		}
		clock := r.MeasurementTime
		if len(clock) > len(bloodpressure.ClockLayout) {
			clock = clock[:len(bloodpressure.ClockLayout)]
		}
		fmt.Printf("  %-7d %-11s %-5s %4d %4d %6d %4d  %s\n",
			r.ID, date, clock, r.Systolic, r.Diastolic, r.Pulse, r.MeanArterialPressure(), r.Status(limits))
	}
}

// writeFile creates path and runs write against it, removing the file on failure.
func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
