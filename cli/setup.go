package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"embysync/config"
	"embysync/services/emby"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Connect to an Emby server",
	Long: `Interactive setup for the Emby connection.

Prompts for the server URL and account credentials, authenticates, and
stores the resulting session token in the config file.`,
	RunE: runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	serverURL, err := prompt("Emby server URL")
	if err != nil {
		return err
	}
	username, err := prompt("Username")
	if err != nil {
		return err
	}
	password, err := prompt("Password")
	if err != nil {
		return err
	}

	client := emby.New(serverURL)
	auth, err := client.Authenticate(username, password)
	if err != nil {
		return err
	}

	cfg, err := cfgManager.Load()
	if errors.Is(err, config.ErrNotConfigured) {
		cfg = &config.Config{Sync: config.SyncSettings{Mode: config.ModeIncremental}}
	} else if err != nil {
		return err
	}
	cfg.Emby = &config.EmbySettings{
		ServerURL:   serverURL,
		UserID:      auth.UserID,
		AccessToken: auth.AccessToken,
		DeviceID:    auth.DeviceID,
	}
	if err := cfgManager.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as user %s\n", serverURL, username)
	fmt.Printf("Configuration saved to %s\n", cfgManager.Path())
	return nil
}
