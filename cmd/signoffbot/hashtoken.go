package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/release-signoff/internal/auth"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Hash a trigger token for SIGNOFF_TRIGGER_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("token must not be empty")
			}
			hash, err := auth.HashToken(args[0], auth.DefaultArgon2idParams)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
