// Package cli provides the embysync command tree.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"embysync/config"
	"embysync/services/store"
)

var (
	flagDataDir string
	flagVerbose bool

	appFs      afero.Fs
	dataDir    string
	cfgManager *config.Manager

	stdin = bufio.NewReader(os.Stdin)
)

var rootCmd = &cobra.Command{
	Use:   "embysync",
	Short: "Sync Emby watch history to Trakt",
	Long: `embysync downloads watched movies and episodes from an Emby server,
keeps a local snapshot, and pushes matched items to a Trakt account.

Run 'embysync setup' first to connect to Emby, then 'embysync trakt setup'
to authorize Trakt.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appFs == nil {
			appFs = afero.NewOsFs()
		}
		dataDir = resolveDataDir()
		cfgManager = config.NewManager(appFs, dataDir)
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for config and state files (default $EMBYSYNC_DATA_DIR or XDG data home)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "mirror the log to stderr")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(traktCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the CLI and returns the command error for exit-code mapping.
func Execute() error {
	return rootCmd.Execute()
}

func resolveDataDir() string {
	if flagDataDir != "" {
		return flagDataDir
	}
	if dir := os.Getenv("EMBYSYNC_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "embysync")
}

// setupLogging routes slog to a rotating file in the data dir, mirrored to
// stderr with --verbose. Logging failures never block a command.
func setupLogging() {
	if err := appFs.MkdirAll(dataDir, 0o755); err != nil {
		return
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(dataDir, "embysync.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	if flagVerbose {
		w = io.MultiWriter(w, os.Stderr)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, nil)))
}

func openStore() (*store.Store, error) {
	return store.New(appFs, dataDir)
}

// prompt reads one line of input after printing a label.
func prompt(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
