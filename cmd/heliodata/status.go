package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"heliodata/pkg/ledger"
	"heliodata/pkg/logger"
	"heliodata/pkg/metadata"
	"heliodata/pkg/storage"
	"heliodata/pkg/timerange"
	"heliodata/pkg/ui"
)

var (
	statusRoot    string
	statusByRange bool
	statusAll     bool
	cleanMetadata bool
	verifyDone    bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show download progress recorded under a root",
	Long: `Show how many samples are done, failed or pending according to the ledger
under the destination root, and list failed samples with their reasons.

Permanent failures are gaps the archive reported (no data for that time);
retriable ones are transient errors that will be retried on the next run.`,
	Example: `  heliodata status --root ./data
  heliodata status --root ./data --by-range
  heliodata status --root ./data --clean-metadata
  heliodata status --root ./data --verify`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusRoot, "root", "o", "", "destination root directory")
	statusCmd.Flags().BoolVar(&statusByRange, "by-range", false, "group counts by product and range")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "list every failed sample instead of the first 20")
	statusCmd.Flags().BoolVar(&cleanMetadata, "clean-metadata", false, "remove metadata sidecars whose artifact is gone")
	statusCmd.Flags().BoolVar(&verifyDone, "verify", false, "check that every done sample's artifact is still on disk")
}

const failedListLimit = 20

func runStatus(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("root") {
		flags["root"] = statusRoot
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	g, err := timerange.ParseGranularity(cfg.Download.Interval)
	if err != nil {
		return err
	}

	return ledger.With(cfg.Download.Root, func(led *ledger.Ledger) error {
		ui.PrintInfo("Ledger", led.Path())

		sum := led.Summary()
		ui.PrintTable(
			[]string{"done", "failed", "pending", "total"},
			[][]string{{fmt.Sprint(sum.Done), fmt.Sprint(sum.Failed), fmt.Sprint(sum.Pending), fmt.Sprint(sum.Total())}},
		)

		if statusByRange {
			fmt.Println()
			ui.PrintTable([]string{"range", "done", "failed", "pending"}, rangeRows(led.Entries(), g))
		}

		failed := led.Keys(ledger.StatusFailed)
		if len(failed) > 0 {
			fmt.Println()
			ui.PrintHighlight("Failed samples")
			shown := failed
			if !statusAll && len(shown) > failedListLimit {
				shown = shown[:failedListLimit]
			}
			rows := make([][]string, 0, len(shown))
			for _, key := range shown {
				rec, _ := led.Status(key)
				rows = append(rows, []string{key, string(rec.Kind), fmt.Sprint(rec.Attempts), rec.Reason})
			}
			ui.PrintTable([]string{"key", "kind", "attempts", "reason"}, rows)
			if len(shown) < len(failed) {
				fmt.Printf("... and %d more (use --all)\n", len(failed)-len(shown))
			}
		}

		if verifyDone {
			store, err := storage.NewManager(led.Root(), cfg.Storage, logger.Nop())
			if err != nil {
				return err
			}
			broken := verifyArtifacts(led, store)
			fmt.Println()
			if len(broken) == 0 {
				ui.PrintSuccess("All done samples verified")
			} else {
				ui.PrintWarning(fmt.Sprintf("%d done samples failed verification; rerun with --ignore-ledger or remove them from the ledger", len(broken)))
				ui.PrintTable([]string{"key", "problem"}, broken)
			}
		}

		if cleanMetadata {
			removed, err := metadata.CleanOrphaned(led.Root())
			if err != nil {
				return err
			}
			fmt.Println()
			ui.PrintSuccess(fmt.Sprintf("Removed %d orphaned metadata files", removed))
		}
		return nil
	})
}

// verifyArtifacts checks the recorded artifact of every done key
func verifyArtifacts(led *ledger.Ledger, store *storage.Manager) [][]string {
	var broken [][]string
	for _, key := range led.Keys(ledger.StatusDone) {
		rec, _ := led.Status(key)
		if rec.Path == "" {
			broken = append(broken, []string{key, "no artifact path recorded"})
			continue
		}
		path := filepath.FromSlash(rec.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(led.Root(), path)
		}
		if err := store.Verify(path); err != nil {
			broken = append(broken, []string{key, err.Error()})
		}
	}
	return broken
}

// rangeRows counts ledger entries per product and calendar range. Keys that
// are not sample keys are grouped under their own name.
func rangeRows(entries map[string]ledger.Record, g timerange.Granularity) [][]string {
	type counts struct{ done, failed, pending int }
	groups := make(map[string]*counts)

	for key, rec := range entries {
		group := key
		if product, t, err := timerange.ParseSampleKey(key); err == nil {
			group = timerange.RangeKey(product, timerange.RangeOf(t, g))
		}
		c, ok := groups[group]
		if !ok {
			c = &counts{}
			groups[group] = c
		}
		switch rec.Status {
		case ledger.StatusDone:
			c.done++
		case ledger.StatusFailed:
			c.failed++
		default:
			c.pending++
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := groups[name]
		rows = append(rows, []string{name, fmt.Sprint(c.done), fmt.Sprint(c.failed), fmt.Sprint(c.pending)})
	}
	return rows
}
