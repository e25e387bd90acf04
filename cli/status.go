package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"embysync/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and statistics",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := cfgManager.Load()
	if errors.Is(err, config.ErrNotConfigured) {
		fmt.Println("Not configured. Run 'embysync setup' to get started.")
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.EmbyConfigured() {
		fmt.Printf("Emby:  %s (user %s)\n", cfg.Emby.ServerURL, cfg.Emby.UserID)
	} else {
		fmt.Println("Emby:  not configured")
	}
	if cfg.TraktConfigured() {
		fmt.Println("Trakt: authorized")
	} else {
		fmt.Println("Trakt: not configured")
	}

	fmt.Printf("Sync mode: %s\n", cfg.Sync.Mode)
	if cfg.Sync.LastSync != nil {
		fmt.Printf("Last sync: %s\n", cfg.Sync.LastSync.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sync: never")
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	meta, err := st.SnapshotMeta()
	if err != nil {
		return err
	}
	if meta != nil {
		fmt.Printf("Snapshot:  %d items, updated %s\n", meta.TotalItems, meta.LastUpdated.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Snapshot:  none (run 'embysync download')")
	}

	synced, err := st.LoadSynced()
	if err != nil {
		return err
	}
	fmt.Printf("Synced:    %d items in ledger\n", len(synced))

	unmatched, err := st.LoadUnmatched()
	if err != nil {
		return err
	}
	if len(unmatched) > 0 {
		fmt.Printf("Unmatched: %d items from last push (see unmatched.yaml)\n", len(unmatched))
	}
	return nil
}
