package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/odinbridge/token"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <room> <user>",
		Short: "Sign a room token with the configured access key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AccessKey == "" {
				return errors.New("no access key configured; run 'odinctl keygen --save' first")
			}

			gen, err := token.NewLocalGenerator(cfg.AccessKey,
				token.WithLifetime(cfg.Token.Lifetime),
				token.WithAudience(cfg.Token.Audience),
			)
			if err != nil {
				return err
			}
			defer gen.Close()

			tok, err := gen.CreateToken(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
