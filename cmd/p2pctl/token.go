package main

import (
	"fmt"
	"time"

	"p2p/internal/middleware"
	"p2p/internal/repository"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT for a known user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, db, err := connect()
			if err != nil {
				return err
			}
			user, err := repository.NewUserRepository(db).GetByEmail(cmd.Context(), email)
			if err != nil {
				if repository.IsNotFound(err) {
					return fmt.Errorf("no user with email %q, run seed first", email)
				}
				return err
			}
			token, err := middleware.IssueToken([]byte(cfg.JWTSecret), user.ID, user.Role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
