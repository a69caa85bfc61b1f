// Command possync runs the POS sync relay or a terminal's sync client.
//
//	possync relay              serve the relay HTTP API
//	possync terminal run       periodic sync daemon
//	possync terminal sync      run one sync cycle and exit
//	possync terminal status    print identity, backlog, cursor and relay health
//
// Configuration comes from the environment; a .env file in the working
// directory (or the one named by --env-file) is loaded first and never
// overrides variables that are already set.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/pos-sync/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("possync failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "possync",
		Short:         "Multi-terminal POS synchronization",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	root.AddCommand(newRelayCmd(), newTerminalCmd())
	return root
}

// loadEnv loads path into the environment. A missing default file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// loadConfig reads and validates configuration after flags are parsed.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, errors.Join(errors.New("invalid configuration"), err)
	}
	return cfg, nil
}
