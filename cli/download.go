package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"embysync/config"
	"embysync/services/emby"
	"embysync/services/sync"
	"embysync/services/trakt"
)

var (
	flagDownloadMode    string
	flagDownloadContent string
	flagDownloadPush    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download watched history from Emby",
	Long: `Downloads watched movies and episodes from the Emby server and stores
them in the local snapshot. In incremental mode only items saved since the
last sync are fetched; the snapshot is replaced either way.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&flagDownloadMode, "mode", "", "sync mode: full or incremental (default from config)")
	downloadCmd.Flags().StringVar(&flagDownloadContent, "content", "all", "content kinds: movies, episodes, or all")
	downloadCmd.Flags().BoolVar(&flagDownloadPush, "push", false, "push to Trakt after downloading")
}

// newSyncService builds the pipeline from the current config. The source
// client resumes the stored Emby session; the sink pieces are only wired
// when Trakt is configured.
func newSyncService(cfg *config.Config) (*sync.Service, error) {
	if !cfg.EmbyConfigured() {
		return nil, fmt.Errorf("%w: emby is not set up, run 'embysync setup'", config.ErrNotConfigured)
	}

	st, err := openStore()
	if err != nil {
		return nil, err
	}

	source := emby.New(cfg.Emby.ServerURL,
		emby.WithSession(cfg.Emby.AccessToken, cfg.Emby.UserID, cfg.Emby.DeviceID))

	var (
		sink      sync.SinkClient
		refresher sync.TokenRefresher
	)
	if cfg.Trakt != nil {
		sink = trakt.NewClient(cfg.Trakt.ClientID, nil)
		refresher = trakt.NewAuthClient(cfg.Trakt.ClientID, cfg.Trakt.ClientSecret, nil)
	}

	return sync.NewService(source, sink, refresher, st, cfgManager), nil
}

func contentFilter(value string) (sync.ContentFilter, error) {
	f := sync.ContentFilter(value)
	if !f.Valid() {
		return "", fmt.Errorf("%w: invalid content filter %q (want movies, episodes, or all)", config.ErrInvalid, value)
	}
	return f, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := cfgManager.Load()
	if err != nil {
		return err
	}

	content, err := contentFilter(flagDownloadContent)
	if err != nil {
		return err
	}
	if flagDownloadMode != "" && flagDownloadMode != config.ModeFull && flagDownloadMode != config.ModeIncremental {
		return fmt.Errorf("%w: invalid mode %q (want full or incremental)", config.ErrInvalid, flagDownloadMode)
	}

	svc, err := newSyncService(cfg)
	if err != nil {
		return err
	}

	report, err := svc.Download(sync.DownloadOptions{
		Mode:    flagDownloadMode,
		Content: content,
	})
	if err != nil {
		return err
	}

	slog.Info("download complete",
		"mode", report.Mode,
		"total", report.Total,
		"movies", report.Movies,
		"episodes", report.Episodes)

	if report.Since != nil {
		fmt.Printf("Incremental download since %s\n", report.Since.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Downloaded %d items (%d movies, %d episodes)\n", report.Total, report.Movies, report.Episodes)

	if flagDownloadPush {
		pushReport, err := svc.Push(sync.PushOptions{Content: content})
		if err != nil {
			return err
		}
		printPushReport(pushReport)
	}
	return nil
}
