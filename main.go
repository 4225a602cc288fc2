package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lcourbon/cadence/internal/bandwidth"
	"github.com/lcourbon/cadence/internal/config"
	"github.com/lcourbon/cadence/internal/download"
	"github.com/lcourbon/cadence/internal/errmsg"
	"github.com/lcourbon/cadence/internal/fetch"
	"github.com/lcourbon/cadence/internal/offline"
	"github.com/lcourbon/cadence/internal/state"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cadence [-v] <command> [args]

Commands:
  list                      show offline tracks and storage usage
  download <id> <uri>       download a track for offline playback
  delete <id>               remove a track from offline storage
  evict <size>              free at least <size> of offline storage (e.g. 500MB)
  cleanup                   purge expired records and shrink below the target mark
  downloads                 show the download ledger
`)
}

type env struct {
	cfg     *config.Config
	store   *offline.Store
	evictor *offline.Evictor
	log     *slog.Logger
}

func openEnv(log *slog.Logger) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}

	store, err := offline.Open(
		filepath.Join(cfg.DataDir, "offline.db"),
		offline.FixedQuota(cfg.Storage.MaxCacheSizeBytes),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%s", errmsg.Format(errmsg.OpStorageOpen, err))
	}

	evictor := offline.NewEvictor(store, offline.EvictorConfig{}, log)

	e := &env{cfg: cfg, store: store, evictor: evictor, log: log}
	return e, func() { store.Close() }, nil
}

func run(cmd string, args []string, log *slog.Logger) error {
	switch cmd {
	case "list":
		return runList(log)
	case "download":
		return runDownload(args, log)
	case "delete":
		return runDelete(args, log)
	case "evict":
		return runEvict(args, log)
	case "cleanup":
		return runCleanup(log)
	case "downloads":
		return runDownloads(log)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runList(log *slog.Logger) error {
	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	records, err := e.store.ListAll()
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpDownloadList, err))
	}

	now := time.Now()
	for _, rec := range records {
		status := ""
		if rec.Expired(now) {
			status = " (expired)"
		}
		fmt.Printf("%-24s %-10s %10s  %s%s\n",
			rec.TrackID, rec.Quality, humanize.Bytes(uint64(rec.SizeBytes)),
			humanize.Time(rec.DownloadedAt), status)
	}

	quota := e.store.Quota()
	fmt.Printf("\n%s of %s used (%.0f%%), %d tracks\n",
		humanize.Bytes(uint64(quota.UsedBytes)),
		humanize.Bytes(uint64(quota.TotalBytes)),
		quota.Usage()*100, len(records))
	return nil
}

// probeSize asks the server for the track size so the coordinator can
// check quota before any bytes move. Servers that won't say get 0, which
// skips the pre-enqueue storage check.
func probeSize(ctx context.Context, f *fetch.Fetcher, uri string, log *slog.Logger) int64 {
	size, err := f.ContentLength(ctx, uri)
	if err != nil {
		log.Warn("could not determine track size", "uri", uri, "err", err)
		return 0
	}
	if size < 0 {
		return 0
	}
	return size
}

func runDownload(args []string, log *slog.Logger) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: cadence download <id> <uri>")
	}
	trackID, uri := args[0], args[1]

	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	mgr, err := state.OpenAt(filepath.Join(e.cfg.DataDir, "cadence.db"))
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}
	defer mgr.Close()

	ledger, err := download.NewLedger(mgr.DB())
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}

	estimator := bandwidth.New(bandwidth.ClassUnknown)
	fetcher := fetch.NewFetcher(estimator, time.Duration(e.cfg.Network.TimeoutSeconds)*time.Second)

	coord := download.NewCoordinator(download.Config{
		MaxConcurrent: e.cfg.Downloads.MaxConcurrent,
		AutoCleanup:   e.cfg.Storage.AutoCleanup,
		MaxTrackAge:   time.Duration(e.cfg.Storage.MaxTrackAgeDays) * 24 * time.Hour,
	}, fetcher, e.store, e.evictor, ledger, log)
	defer coord.Close()

	coord.OnProgress(func(t download.Task) {
		fmt.Printf("\r%s %.0f%%", t.TrackID, t.ProgressPercent)
	})

	size := probeSize(context.Background(), fetcher, uri, log)

	quality := e.cfg.Playback.PreferredQuality
	err = coord.Enqueue(download.Request{
		TrackID:       trackID,
		SourceURI:     uri,
		Quality:       quality,
		EstimatedSize: size,
	})
	if err != nil {
		return fmt.Errorf("%s", errmsg.FormatWith(errmsg.OpDownloadQueue, trackID, err))
	}

	coord.Wait()
	fmt.Println()

	task := coord.Task(trackID)
	if task == nil {
		return fmt.Errorf("%s", errmsg.FormatWith(errmsg.OpDownloadQueue, trackID, fmt.Errorf("task vanished")))
	}
	if task.State == download.StateFailed {
		return fmt.Errorf("%s", errmsg.FormatWith(errmsg.OpDownloadQueue, trackID,
			fmt.Errorf("download failed after %d attempt(s)", task.Attempt)))
	}

	fmt.Printf("downloaded %s (%s)\n", trackID, humanize.Bytes(uint64(task.SizeBytes)))
	return nil
}

func runDelete(args []string, log *slog.Logger) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cadence delete <id>")
	}

	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	if err := e.store.Delete(args[0]); err != nil {
		return fmt.Errorf("%s", errmsg.FormatWith(errmsg.OpStorageDelete, args[0], err))
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runEvict(args []string, log *slog.Logger) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cadence evict <size>")
	}
	bytes, err := humanize.ParseBytes(args[0])
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[0], err)
	}

	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	reclaimed := e.evictor.FreeSpace(int64(bytes))
	fmt.Printf("reclaimed %s\n", humanize.Bytes(uint64(reclaimed)))
	return nil
}

func runCleanup(log *slog.Logger) error {
	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	reclaimed := e.evictor.AutoCleanup()
	fmt.Printf("reclaimed %s\n", humanize.Bytes(uint64(reclaimed)))
	return nil
}

func runDownloads(log *slog.Logger) error {
	e, closeEnv, err := openEnv(log)
	if err != nil {
		return err
	}
	defer closeEnv()

	mgr, err := state.OpenAt(filepath.Join(e.cfg.DataDir, "cadence.db"))
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}
	defer mgr.Close()

	ledger, err := download.NewLedger(mgr.DB())
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}

	tasks, err := ledger.List()
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpDownloadList, err))
	}
	for _, t := range tasks {
		fmt.Printf("%-24s %-12s %5.1f%%  %s\n",
			t.TrackID, t.State, t.ProgressPercent, humanize.Bytes(uint64(t.SizeBytes)))
	}
	return nil
}
