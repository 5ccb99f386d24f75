// cmd/histstat reports on stored price history: per-instrument quality
// analysis, storage usage, and CSV export.
//
// Usage:
//
//	go run ./cmd/histstat --backend=json --dir=data
//	go run ./cmd/histstat --backend=sqlite --db=data/history.db --instrument=btc_idr --csv=btc.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"signalbot/internal/history"
	"signalbot/internal/logger"
	"signalbot/internal/model"
	"signalbot/internal/store/jsonfile"
	sqlitestore "signalbot/internal/store/sqlite"
)

// source is a history repository that can list its instruments.
type source interface {
	model.HistoryRepository
	list(ctx context.Context) ([]string, error)
	size(instrument string) int64
}

type jsonSource struct{ *jsonfile.Store }

func (s jsonSource) list(ctx context.Context) ([]string, error) { return s.Instruments() }

func (s jsonSource) size(instrument string) int64 {
	var n int64
	for _, p := range []string{s.ActivePath(instrument), s.ArchivePath(instrument)} {
		if fi, err := os.Stat(p); err == nil {
			n += fi.Size()
		}
	}
	return n
}

type sqliteSource struct{ *sqlitestore.HistoryStore }

func (s sqliteSource) list(ctx context.Context) ([]string, error) { return s.Instruments(ctx) }

// size is reported for the whole database file, not per instrument.
func (s sqliteSource) size(string) int64 { return -1 }

func main() {
	backend := flag.String("backend", "json", "History backend: json or sqlite")
	dir := flag.String("dir", "data", "Directory of the json backend")
	dbPath := flag.String("db", "data/history.db", "Path to the sqlite history database")
	only := flag.String("instrument", "", "Comma-separated instruments to report (default: all stored)")
	csvPath := flag.String("csv", "", "Export the analyzed history of the selected instrument(s) to this CSV file ('-' for stdout)")
	withArchive := flag.Bool("archive", false, "Include archived samples in analysis and export")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	log := logger.Init("histstat", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	ctx := context.Background()

	src, err := open(*backend, *dir, *dbPath)
	if err != nil {
		log.Error("open history", "backend", *backend, "err", err)
		os.Exit(1)
	}
	defer src.Close()

	instruments, err := selectInstruments(ctx, src, *only)
	if err != nil {
		log.Error("list instruments", "err", err)
		os.Exit(1)
	}
	if len(instruments) == 0 {
		log.Warn("no stored history found", "backend", *backend)
		return
	}

	var (
		reports []report
		export  []model.PriceSample
	)
	for _, inst := range instruments {
		samples, archive, err := src.Load(ctx, inst)
		if err != nil {
			log.Error("load history", "instrument", inst, "err", err)
			continue
		}
		window := samples
		if *withArchive {
			window = append(append([]model.PriceSample(nil), archive...), samples...)
		}
		reports = append(reports, newReport(inst, samples, archive, window, src.size(inst)))
		export = append(export, window...)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(reports)
	} else {
		printReports(os.Stdout, reports)
	}
	if *backend == "sqlite" {
		if fi, err := os.Stat(*dbPath); err == nil {
			fmt.Printf("\ndatabase %s: %s\n", *dbPath, humanBytes(fi.Size()))
		}
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, export); err != nil {
			log.Error("csv export", "path", *csvPath, "err", err)
			os.Exit(1)
		}
		log.Info("csv exported", "path", *csvPath, "samples", len(export))
	}
}

func open(backend, dir, dbPath string) (source, error) {
	switch backend {
	case "json":
		s, err := jsonfile.New(dir)
		if err != nil {
			return nil, err
		}
		return jsonSource{s}, nil
	case "sqlite":
		if _, err := os.Stat(dbPath); err != nil {
			return nil, err
		}
		s, err := sqlitestore.NewHistoryStore(dbPath)
		if err != nil {
			return nil, err
		}
		return sqliteSource{s}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func selectInstruments(ctx context.Context, src source, only string) ([]string, error) {
	if only != "" {
		var out []string
		for _, p := range strings.Split(only, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return src.list(ctx)
}

type report struct {
	Instrument string          `json:"instrument"`
	Active     int             `json:"active"`
	Archived   int             `json:"archived"`
	First      time.Time       `json:"first"`
	Last       time.Time       `json:"last"`
	Bytes      int64           `json:"bytes,omitempty"`
	Quality    history.Quality `json:"quality"`
}

func newReport(inst string, samples, archive, window []model.PriceSample, size int64) report {
	r := report{
		Instrument: inst,
		Active:     len(samples),
		Archived:   len(archive),
		Quality:    history.AnalyzeQuality(window),
	}
	if size > 0 {
		r.Bytes = size
	}
	if len(window) > 0 {
		r.First, r.Last = window[0].TS, window[len(window)-1].TS
	}
	return r
}

func printReports(w io.Writer, reports []report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTRUMENT\tACTIVE\tARCHIVED\tSPAN\tAVG INTERVAL\tVOL%\tSCORE\tLEVEL\tSIZE")
	for _, r := range reports {
		size := "-"
		if r.Bytes > 0 {
			size = humanBytes(r.Bytes)
		}
		st := r.Quality.Stats
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%.3f\t%d\t%s\t%s\n",
			r.Instrument, r.Active, r.Archived,
			st.Duration.Round(time.Second), st.AvgInterval.Round(time.Millisecond),
			st.VolatilityPercent, r.Quality.Score, r.Quality.Level, size)
	}
	tw.Flush()

	for _, r := range reports {
		fmt.Fprintf(w, "\n%s: %s\n", r.Instrument, r.Quality.Recommendation)
		for _, f := range r.Quality.Factors {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

func writeCSV(path string, samples []model.PriceSample) error {
	if path == "-" {
		return history.WriteCSV(os.Stdout, samples)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := history.WriteCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
