package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"embysync/services/sync"
)

var (
	flagPushContent string
	flagPushDryRun  bool
	flagPushRatings bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the local snapshot to Trakt",
	Long: `Pushes watched items from the local snapshot to Trakt history.

Items without any provider ID, or without an ID type Trakt accepts for
their kind, are written to the unmatched log for manual review. Items
already pushed in a previous run are skipped via the synced-id ledger.`,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&flagPushContent, "content", "all", "content kinds: movies, episodes, or all")
	pushCmd.Flags().BoolVar(&flagPushDryRun, "dry-run", false, "report what would be pushed without pushing")
	pushCmd.Flags().BoolVar(&flagPushRatings, "ratings", false, "also push user ratings")
}

func printPushReport(r *sync.PushReport) {
	if r.DryRun {
		fmt.Println("Dry run - nothing was pushed.")
	}
	fmt.Printf("%d items in scope: %d syncable, %d unmatched, %d already synced\n",
		r.Total, r.Syncable, r.Unmatched, r.AlreadySynced)
	if r.DryRun {
		fmt.Printf("Would submit %d items\n", r.Submitted)
		return
	}
	fmt.Printf("Submitted %d items; Trakt added %d movies and %d episodes\n",
		r.Submitted, r.AddedMovies, r.AddedEpisodes)
	if r.RatedMovies > 0 || r.RatedEpisodes > 0 {
		fmt.Printf("Rated %d movies and %d episodes\n", r.RatedMovies, r.RatedEpisodes)
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := cfgManager.Load()
	if err != nil {
		return err
	}

	content, err := contentFilter(flagPushContent)
	if err != nil {
		return err
	}

	svc, err := newSyncService(cfg)
	if err != nil {
		return err
	}

	report, err := svc.Push(sync.PushOptions{
		Content: content,
		DryRun:  flagPushDryRun,
		Ratings: flagPushRatings,
	})
	if err != nil {
		return err
	}

	slog.Info("push complete",
		"dry_run", report.DryRun,
		"syncable", report.Syncable,
		"unmatched", report.Unmatched,
		"submitted", report.Submitted,
		"added_movies", report.AddedMovies,
		"added_episodes", report.AddedEpisodes)

	printPushReport(report)
	return nil
}
