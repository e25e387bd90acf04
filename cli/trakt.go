package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"

	"embysync/config"
	"embysync/services/trakt"
)

var traktCmd = &cobra.Command{
	Use:   "trakt",
	Short: "Manage the Trakt connection",
}

var traktSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Authorize Trakt via the device code flow",
	Long: `Interactive Trakt authorization.

Prompts for the Trakt application client ID and secret, then walks through
the device code flow: a short code is displayed, you approve it in a
browser, and the command polls until Trakt issues tokens or the code
expires.`,
	RunE: runTraktSetup,
}

var flagClearYes bool

var traktClearCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Delete ALL watch history from the Trakt account",
	Long: `Deletes every watched movie and episode from the Trakt account.

This is destructive and cannot be undone on the Trakt side. The command
shows the remote history size and asks for confirmation unless --yes is
given.`,
	RunE: runTraktClear,
}

func init() {
	traktClearCmd.Flags().BoolVar(&flagClearYes, "yes", false, "skip the confirmation prompt")
	traktCmd.AddCommand(traktSetupCmd)
	traktCmd.AddCommand(traktClearCmd)
}

// errAuthorizationPending drives the retry loop while the user has not yet
// approved the device code.
var errAuthorizationPending = errors.New("authorization pending")

// pollForTokens polls the device token endpoint on a fixed delay until the
// user approves, a terminal auth error occurs, or the device code's
// lifetime is exhausted. The delay is a parameter so tests run without real
// waits.
func pollForTokens(auth *trakt.AuthClient, dc *trakt.DeviceCodeResponse, delay time.Duration) (*trakt.TokenResponse, error) {
	interval := dc.Interval
	if interval <= 0 {
		interval = 5
	}
	attempts := dc.ExpiresIn / interval
	if attempts < 1 {
		attempts = 1
	}

	var tokens *trakt.TokenResponse
	err := retry.Do(
		func() error {
			res, err := auth.PollForToken(dc.DeviceCode)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if res.Pending {
				return errAuthorizationPending
			}
			tokens = res.Tokens
			return nil
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, errAuthorizationPending) {
			return nil, fmt.Errorf("%w: device code expired before authorization", trakt.ErrAuth)
		}
		return nil, err
	}
	return tokens, nil
}

func runTraktSetup(cmd *cobra.Command, args []string) error {
	clientID, err := prompt("Trakt client ID")
	if err != nil {
		return err
	}
	clientSecret, err := prompt("Trakt client secret")
	if err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: client ID is required", config.ErrInvalid)
	}

	auth := trakt.NewAuthClient(clientID, clientSecret, nil)
	dc, err := auth.RequestDeviceCode()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Visit %s and enter code: %s\n", dc.VerificationURL, dc.UserCode)
	fmt.Printf("Waiting for authorization (expires in %ds)...\n", dc.ExpiresIn)

	interval := dc.Interval
	if interval <= 0 {
		interval = 5
	}
	tokens, err := pollForTokens(auth, dc, time.Duration(interval)*time.Second)
	if err != nil {
		return err
	}

	cfg, err := cfgManager.Load()
	if errors.Is(err, config.ErrNotConfigured) {
		cfg = &config.Config{Sync: config.SyncSettings{Mode: config.ModeIncremental}}
	} else if err != nil {
		return err
	}
	cfg.Trakt = &config.TraktSettings{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.CreatedAt + int64(tokens.ExpiresIn),
	}
	if err := cfgManager.Save(cfg); err != nil {
		return err
	}

	fmt.Println("Trakt authorized. Tokens saved.")
	return nil
}

func runTraktClear(cmd *cobra.Command, args []string) error {
	cfg, err := cfgManager.Load()
	if err != nil {
		return err
	}
	if !cfg.TraktConfigured() {
		return fmt.Errorf("%w: trakt is not set up, run 'embysync trakt setup'", config.ErrNotConfigured)
	}

	client := trakt.NewClient(cfg.Trakt.ClientID, nil)
	token := cfg.Trakt.AccessToken

	movies, err := client.GetWatchedMovies(token)
	if err != nil {
		return err
	}
	shows, err := client.GetWatchedShows(token)
	if err != nil {
		return err
	}

	if len(movies) == 0 && len(shows) == 0 {
		fmt.Println("Trakt history is already empty.")
		return nil
	}

	fmt.Printf("This will permanently delete %d movies and %d shows from Trakt history.\n", len(movies), len(shows))
	if !flagClearYes {
		answer, err := prompt("Type 'yes' to continue")
		if err != nil {
			return err
		}
		if answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	result, err := client.RemoveFromHistory(token, movies, shows)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d movies and %d episodes from Trakt history.\n", result.Deleted.Movies, result.Deleted.Episodes)
	return nil
}
