package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/native"
)

func keygenCmd() *cobra.Command {
	var (
		useNative bool
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new access key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				key string
				err error
			)
			if useNative {
				key, err = nativeAccessKey()
			} else {
				key, err = config.GenerateAccessKey()
			}
			if err != nil {
				return err
			}

			if save {
				if !config.KeyringAvailable() {
					return fmt.Errorf("keychain disabled by %s", config.EnvKeyringDisabled)
				}
				if err := config.StoreAccessKey(account, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Stored access key for account %q\n", account)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useNative, "native", false, "generate the key with the native library")
	cmd.Flags().BoolVar(&save, "save", false, "store the key in the OS keychain")
	return cmd
}

func nativeAccessKey() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	api, err := openNative(cfg)
	if err != nil {
		return "", err
	}
	return api.GenerateAccessKey()
}

func openNative(cfg *config.Config) (native.API, error) {
	path := cfg.LibraryPath
	if path == "" {
		path = native.DefaultLibraryName()
	}
	return native.Open(path)
}
