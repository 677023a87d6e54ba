package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/routedata/internal/adapters/http/api"
	"github.com/okian/routedata/internal/domain/query"
)

var errNoSecret = errors.New("member_jwt_secret is not configured")

func newTokenCmd(c *cli) *cobra.Command {
	var (
		member query.Member
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token MEMBER_ID",
		Short: "Sign a member bearer token for the preview API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.MemberJWTSecret == "" {
				return errNoSecret
			}
			member.ID = args[0]
			token, err := api.NewMemberToken(c.cfg.MemberJWTSecret, member, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&member.Status, "status", "free", "member status: free or paid")
	flags.StringVar(&member.Email, "email", "", "member email")
	flags.StringVar(&member.Name, "name", "", "member name")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
