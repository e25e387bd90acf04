package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"embysync/config"
	"embysync/services/emby"
	"embysync/services/trakt"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and test connections",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := cfgManager.Load()
	if err != nil {
		return err
	}

	if !cfg.EmbyConfigured() {
		return fmt.Errorf("%w: emby is not set up, run 'embysync setup'", config.ErrNotConfigured)
	}

	client := emby.New(cfg.Emby.ServerURL,
		emby.WithSession(cfg.Emby.AccessToken, cfg.Emby.UserID, cfg.Emby.DeviceID))
	if !client.TestConnection() {
		return fmt.Errorf("%w: cannot reach %s", emby.ErrConnection, cfg.Emby.ServerURL)
	}
	fmt.Printf("Emby:  OK (%s)\n", cfg.Emby.ServerURL)

	if cfg.TraktConfigured() {
		sink := trakt.NewClient(cfg.Trakt.ClientID, nil)
		if !sink.TestConnection(cfg.Trakt.AccessToken) {
			return fmt.Errorf("%w: trakt token rejected, re-run 'embysync trakt setup'", trakt.ErrAuth)
		}
		fmt.Println("Trakt: OK")
	} else {
		fmt.Println("Trakt: not configured (skipped)")
	}

	return nil
}
