package main

import (
	"errors"
	"fmt"
	"os"

	"embysync/cli"
	"embysync/config"
	"embysync/services/emby"
	"embysync/services/trakt"
)

// Exit codes per the CLI contract.
const (
	exitOK     = 0
	exitConfig = 1
	exitAuth   = 2
	exitSync   = 3
)

func main() {
	err := cli.Execute()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, trakt.ErrSync):
		return exitSync
	case errors.Is(err, emby.ErrAuth),
		errors.Is(err, emby.ErrConnection),
		errors.Is(err, trakt.ErrAuth),
		errors.Is(err, trakt.ErrConnection):
		return exitAuth
	case errors.Is(err, config.ErrNotConfigured), errors.Is(err, config.ErrInvalid):
		return exitConfig
	default:
		return exitConfig
	}
}
