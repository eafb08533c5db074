// Package main runs a single occupancy scan from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/directory"
	"github.com/garyellow/osvita-occupancy/internal/export"
	"github.com/garyellow/osvita-occupancy/internal/logger"
	"github.com/garyellow/osvita-occupancy/internal/lookup"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
	"github.com/garyellow/osvita-occupancy/internal/respcache"
	"github.com/garyellow/osvita-occupancy/internal/scan"
	"github.com/garyellow/osvita-occupancy/internal/storage"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

type options struct {
	date  string
	xlsx  string
	save  bool
	rooms bool
	quiet bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, now time.Time, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.date, "date", "d", now.Format(scan.DateLayout), "date to scan (YYYY-MM-DD)")
	flagSet.StringVarP(&opts.xlsx, "xlsx", "o", "", "write the grid to this .xlsx file")
	flagSet.BoolVar(&opts.save, "save", false, "store the result in the configured backend")
	flagSet.BoolVar(&opts.rooms, "rooms", false, "print one line per room")
	flagSet.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if _, err := scan.ParseDate(opts.date); err != nil {
		return opts, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", opts.date)
	}
	if opts.xlsx != "" && !strings.HasSuffix(strings.ToLower(opts.xlsx), ".xlsx") {
		opts.xlsx += ".xlsx"
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, time.Now(), stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadForMode(config.ScanMode)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewWithWriter(cfg.LogLevel, stderr).WithModule("scan_cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	up := upstream.NewClient(upstream.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		VuzID:      cfg.Upstream.VuzID,
		Timeout:    cfg.Upstream.Timeout,
		MaxRetries: cfg.Upstream.MaxRetries,
		RPS:        cfg.Upstream.RPS,
		Burst:      cfg.Upstream.Burst,
	})
	cache := respcache.New(respcache.Options{
		Capacity:     cfg.Cache.Capacity,
		ScheduleTTL:  cfg.Cache.ScheduleTTL,
		ReferenceTTL: cfg.Cache.ReferenceTTL,
	})

	scanOpts := scan.Options{ResultTTL: cfg.ResultTTL, Logger: log}
	if opts.save {
		store, err := storage.Open(ctx, cfg, nil)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = store.Close() }()
		scanOpts.Sink = store
		log.WithField("backend", store.Backend()).Info("Result store connected")
	}

	controller := scan.NewController(
		lookup.New(up, respcache.NewFetcher(cache)),
		directory.NewBuilder(up, cfg.Scan.DiscoveryChunkSize, cfg.Scan.DiscoveryChunkDelay),
		occupancy.NewEngine(up, occupancy.EngineOptions{
			ChunkSize:   cfg.Scan.FetchChunkSize,
			Delay:       cfg.Scan.FetchChunkDelay,
			CallTimeout: cfg.Upstream.Timeout,
		}),
		scanOpts)

	date, _ := scan.ParseDate(opts.date)
	start := time.Now()
	if _, err := controller.Start(ctx, date); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}

	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	st := waitForScan(ctx, controller, updates, func(s scan.State) {
		if !opts.quiet {
			printProgress(stderr, s)
		}
	})

	printSummary(stdout, st, time.Since(start))
	if opts.rooms {
		if err := printRooms(stdout, st.Rooms); err != nil {
			return err
		}
	}

	if opts.xlsx != "" && len(st.Rooms) > 0 {
		if err := writeWorkbook(opts.xlsx, st.Rooms); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "✓ Workbook written to %s\n", opts.xlsx)
	}

	if st.Phase == scan.PhaseFailed {
		return fmt.Errorf("scan failed: %s", st.Message)
	}
	return nil
}

// waitForScan relays updates until the scan reaches a terminal phase. An
// interrupt cancels the scan, which still ends with its partial grid.
func waitForScan(ctx context.Context, c *scan.Controller, updates <-chan scan.State, onUpdate func(scan.State)) scan.State {
	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			c.Cancel()
			interrupted = nil
		case st, ok := <-updates:
			if !ok {
				return c.State()
			}
			onUpdate(st)
			if st.Phase.Terminal() {
				return st
			}
		}
	}
}

func printProgress(w io.Writer, st scan.State) {
	if st.Progress.Total > 0 {
		_, _ = fmt.Fprintf(w, "[%s] %d/%d %s\n", st.Phase, st.Progress.Current, st.Progress.Total, st.Progress.Text)
		return
	}
	_, _ = fmt.Fprintf(w, "[%s] %s\n", st.Phase, st.Progress.Text)
}

type buildingTotals struct {
	rooms    int
	occupied int
}

func summarize(rooms occupancy.Snapshot) (map[string]buildingTotals, []string) {
	totals := make(map[string]buildingTotals)
	for _, r := range rooms {
		t := totals[r.Building]
		t.rooms++
		t.occupied += len(r.Slots)
		totals[r.Building] = t
	}
	buildings := make([]string, 0, len(totals))
	for b := range totals {
		buildings = append(buildings, b)
	}
	slices.SortFunc(buildings, compareBuildings)
	return totals, buildings
}

// compareBuildings orders numeric tags numerically, then other tags, then
// the unknown tag last.
func compareBuildings(a, b string) int {
	rank := func(s string) (int, int) {
		if s == occupancy.UnknownBuilding {
			return 2, 0
		}
		if n, err := strconv.Atoi(s); err == nil {
			return 0, n
		}
		return 1, 0
	}
	ra, na := rank(a)
	rb, nb := rank(b)
	if ra != rb {
		return ra - rb
	}
	if na != nb {
		return na - nb
	}
	return strings.Compare(a, b)
}

func printSummary(w io.Writer, st scan.State, elapsed time.Duration) {
	_, _ = fmt.Fprintf(w, "Scan %s for %s: %s\n", st.ScanID, st.Date, st.Phase)
	_, _ = fmt.Fprintf(w, "  groups: %d, failed requests: %d, rooms: %d, occupied slots: %d, took %s\n",
		st.Entities, st.ErrorCount, len(st.Rooms), st.Rooms.Occupied(), elapsed.Round(time.Second))
	if st.Message != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", st.Message)
	}
	if len(st.Rooms) == 0 {
		return
	}

	totals, buildings := summarize(st.Rooms)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILDING\tROOMS\tOCCUPIED")
	for _, b := range buildings {
		t := totals[b]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", b, t.rooms, t.occupied)
	}
	_ = tw.Flush()
}

func printRooms(w io.Writer, rooms occupancy.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ROOM\tSLOT\tGROUPS\tTEACHER")
	for _, r := range rooms {
		slots := make([]int, 0, len(r.Slots))
		for s := range r.Slots {
			slots = append(slots, s)
		}
		slices.Sort(slots)
		for _, s := range slots {
			cell := r.Slots[s]
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Name, s, cell.Label(), cell.Instructor)
		}
	}
	return tw.Flush()
}

func writeWorkbook(path string, rooms occupancy.Snapshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()
	if err := export.WriteXLSX(f, rooms); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
