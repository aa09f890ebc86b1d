package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"heliodata/internal/downloader"
	"heliodata/pkg/archive"
	"heliodata/pkg/auth"
	"heliodata/pkg/config"
	"heliodata/pkg/ledger"
	"heliodata/pkg/logger"
	"heliodata/pkg/mirror"
	"heliodata/pkg/storage"
	"heliodata/pkg/timerange"
	"heliodata/pkg/ui"
)

var (
	downloadRoot   string
	downloadStart  string
	downloadEnd    string
	startYear      int
	endYear        int
	interval       string
	cadence        time.Duration
	margin         time.Duration
	products       []string
	identity       string
	ignoreLedger   bool
	retryPermanent bool
	maxAttempts    int
	requestsPerMin int
	checksums      bool
	mirrorURL      string
	logFile        string
	notify         bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <mission>",
	Short: "Download a mission's samples over a time span",
	Long: `Download every sample of the selected products between start and end.

The span is split into calendar years or months (--interval); each range is
sampled every --cadence and stored under root/mission/product/YYYY[/MM]. Samples
already recorded in root/ledger.json are skipped, so re-running the same
command resumes where the last run stopped.

Run 'heliodata missions' to list the available missions and products.`,
	Example: `  # One synoptic AIA image per day for 2016, all wavelengths
  heliodata download sdo-aia --start 2016-01-01 --end 2017-01-01

  # Two wavelengths, every 6 hours, ranges of one year
  heliodata download sdo-aia --products 171,304 --cadence 6h --interval year --start-year 2012 --end-year 2014

  # Start over, ignoring what the ledger says
  heliodata download sdo-aia --ignore-ledger`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringVarP(&downloadRoot, "root", "o", "", "destination root directory")
	f.StringVar(&downloadStart, "start", "", "start time (2006-01-02 or 2006-01-02T15:04:05, UTC)")
	f.StringVar(&downloadEnd, "end", "", "end time, exclusive")
	f.IntVar(&startYear, "start-year", 0, "first year to download (alternative to --start)")
	f.IntVar(&endYear, "end-year", 0, "last year to download, inclusive (alternative to --end)")
	f.StringVar(&interval, "interval", "", "range granularity: year or month")
	f.DurationVar(&cadence, "cadence", 0, "time between samples (e.g. 24h, 12m)")
	f.DurationVar(&margin, "margin", 0, "how far from each sample time the archive may search")
	f.StringSliceVarP(&products, "products", "p", nil, "products to download (default: all of the mission's)")
	f.StringVar(&identity, "identity", "", "archive identity (e-mail or token); overrides stored identities")
	f.BoolVar(&ignoreLedger, "ignore-ledger", false, "ignore recorded progress and fetch everything again")
	f.BoolVar(&retryPermanent, "retry-permanent", true, "retry samples that previously failed permanently")
	f.IntVar(&maxAttempts, "max-attempts", 0, "attempts per sample for transient failures")
	f.IntVar(&requestsPerMin, "requests-per-minute", 0, "archive request limit (0 = unlimited)")
	f.BoolVar(&checksums, "checksums", false, "record SHA-256 checksums in metadata sidecars")
	f.StringVar(&mirrorURL, "mirror", "", "bucket URL to mirror artifacts to (file://, s3://, gs://)")
	f.StringVar(&logFile, "log-file", "", "log file (default: root/heliodata.log)")
	f.BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

// downloadFlags collects the flags the user actually set
func downloadFlags(cmd *cobra.Command) (map[string]interface{}, error) {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("root") {
		flags["root"] = downloadRoot
	}
	if changed("start") {
		flags["start"] = downloadStart
	}
	if changed("end") {
		flags["end"] = downloadEnd
	}
	if changed("start-year") || changed("end-year") {
		if !changed("start-year") || !changed("end-year") {
			return nil, fmt.Errorf("--start-year and --end-year must be used together")
		}
		if changed("start") || changed("end") {
			return nil, fmt.Errorf("--start-year/--end-year cannot be combined with --start/--end")
		}
		start, end, err := timerange.YearBounds(startYear, endYear)
		if err != nil {
			return nil, err
		}
		flags["start"] = start.Format(timerange.TimeLayout)
		flags["end"] = end.Format(timerange.TimeLayout)
	}
	if changed("interval") {
		flags["interval"] = interval
	}
	if changed("cadence") {
		flags["cadence"] = cadence
	}
	if changed("margin") {
		flags["margin"] = margin
	}
	if changed("identity") {
		flags["identity"] = identity
	}
	if changed("ignore-ledger") {
		flags["ignore-ledger"] = ignoreLedger
	}
	if changed("retry-permanent") {
		flags["retry-permanent"] = retryPermanent
	}
	if changed("max-attempts") {
		flags["max-attempts"] = maxAttempts
	}
	if changed("requests-per-minute") {
		flags["requests-per-minute"] = requestsPerMin
	}
	if changed("checksums") {
		flags["checksums"] = checksums
	}
	if changed("mirror") {
		flags["mirror"] = mirrorURL
	}
	if changed("log-file") {
		flags["log-file"] = logFile
	}
	return flags, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags, err := downloadFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	mission, err := archive.Lookup(args[0], cfg.Missions)
	if err != nil {
		return err
	}
	if err := mission.Validate(); err != nil {
		return err
	}
	selected, err := mission.SelectProducts(products)
	if err != nil {
		return err
	}

	resolveIdentity(cfg, mission, log)

	ui.PrintInfo("Mission", mission.String())
	ui.PrintInfo("Products", strings.Join(selected, ", "))
	ui.PrintInfo("Span", fmt.Sprintf("%s to %s by %s, every %s", cfg.Download.Start, cfg.Download.End, cfg.Download.Interval, cfg.Download.Cadence))
	ui.PrintInfo("Destination", cfg.Download.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := ui.NewNotifier(notify)

	var opts []ledger.Option
	opts = append(opts, ledger.WithLogger(log))
	if cfg.Download.IgnoreLedger {
		opts = append(opts, ledger.Fresh())
	}

	var res *downloader.Result
	err = ledger.With(cfg.Download.Root, func(led *ledger.Ledger) error {
		if cfg.Download.BackupLedger {
			backup, err := led.Backup()
			if err != nil {
				return err
			}
			if backup != "" {
				ui.PrintInfo("Ledger backup", backup)
			}
		}

		var runErr error
		res, runErr = download(ctx, cfg, mission, selected, led, log)
		return runErr
	}, opts...)

	if res != nil {
		printResult(res)
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		ui.PrintWarning("Interrupted; run the same command again to resume")
		return err
	case err != nil:
		log.WithError(err).Error("Download failed")
		done := 0
		if res != nil {
			done = res.Done
		}
		notifier.RunFinished(mission.Name, done, 0, err)
		return err
	case res.Failed > 0:
		ui.PrintWarning(fmt.Sprintf("%d samples failed; see 'heliodata status --root %s'", res.Failed, cfg.Download.Root))
	}
	notifier.RunFinished(mission.Name, res.Done, res.Failed, nil)
	return nil
}

// download wires the archive client, storage and optional mirror into a
// runner and executes it against led.
func download(ctx context.Context, cfg *config.Config, mission archive.Mission, selected []string, led *ledger.Ledger, log logger.Logger) (*downloader.Result, error) {
	store, err := storage.NewManager(cfg.Download.Root, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	client, err := archive.NewClient(mission, cfg.Archive, log)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	display := ui.NewProgressDisplay(mission.Name, 0, verbose)
	opts := []downloader.Option{
		downloader.WithLogger(log),
	}
	if !quiet {
		opts = append(opts, downloader.WithReporter(display))
	}

	if cfg.Mirror.URL != "" {
		m, err := mirror.Open(ctx, cfg.Mirror, log)
		if err != nil {
			return nil, err
		}
		defer m.Close()
		opts = append(opts, downloader.WithUploader(m))
		ui.PrintInfo("Mirror", cfg.Mirror.URL)
	}

	runner, err := downloader.NewRunner(cfg, mission.Name, selected, client, store, led, opts...)
	if err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx)
	if !quiet {
		display.Complete()
	}
	return res, err
}

// resolveIdentity fills the archive identity from the credential stores
// when neither config, environment nor flags provided one.
func resolveIdentity(cfg *config.Config, mission archive.Mission, log logger.Logger) {
	if cfg.Archive.Identity != "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("Credential stores unavailable")
		return
	}

	value, err := manager.Resolve(mission.Archive)
	if err != nil {
		log.DebugWithFields("No stored identity", map[string]interface{}{
			"archive": mission.Archive,
		})
		return
	}
	cfg.Archive.Identity = value
	ui.PrintInfo("Identity", auth.Mask(value))
}

func printResult(res *downloader.Result) {
	fmt.Println()
	ui.PrintTable(
		[]string{"planned", "downloaded", "skipped", "failed", "bytes", "elapsed"},
		[][]string{{
			fmt.Sprint(res.Planned),
			fmt.Sprint(res.Done),
			fmt.Sprint(res.Skipped),
			fmt.Sprint(res.Failed),
			fmt.Sprint(res.Bytes),
			res.Duration.Round(time.Second).String(),
		}},
	)
}
