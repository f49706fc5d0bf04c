package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/odinbridge/config"
)

// Shared flags.
var (
	cfgFile  string
	envFiles []string
	account  string
	verbose  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "odinctl",
		Short: "odinctl - voice room client",
		Long: `odinctl drives the voice engine bridge from the command line.

Generate an access key with 'odinctl keygen --save', then join a room with
'odinctl join lobby'. Use --sim to run against the built-in engine
simulation instead of the native library.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default: built-in defaults)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files to load (default: .env)")
	root.PersistentFlags().StringVar(&account, "account", "default", "keychain account holding the access key")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(keygenCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(joinCmd())
	return root
}

// loadConfig reads --config (or the defaults), applies the environment and
// falls back to the keychain for a missing access key.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(envFiles...); err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}

	if cfg.AccessKey == "" && config.KeyringAvailable() {
		key, err := config.LoadAccessKey(account)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "loadConfig",
				"account":  account,
				"error":    err.Error(),
			}).Debug("No access key in keychain")
		} else {
			cfg.AccessKey = key
		}
	}
	return cfg, nil
}
