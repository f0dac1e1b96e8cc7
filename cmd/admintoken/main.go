package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/geocoder89/securedata/internal/auth"
	"github.com/geocoder89/securedata/internal/config"
)

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd prints a bearer token for the admin listing routes, signed
// with the same JWT_SECRET the API uses.
func newRootCmd(cfg config.Config) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:          "admintoken",
		Short:        "Mint an admin bearer token for /users and /emails",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}

			m, err := auth.NewManager(cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}

			token, err := m.GenerateAccessToken(subject, auth.RoleAdmin)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject, recorded in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.JWTAccessTTL(), "token lifetime")

	return cmd
}
