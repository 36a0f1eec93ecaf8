package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/infra/postgres"
)

// groupWriter is the part of the enrolment stores add-members needs.
type groupWriter interface {
	AddMember(ctx context.Context, grpCod, usrCod int64) error
}

// NewAddMembersCmd puts students into a group. Matches created for that
// group are then open to them.
func NewAddMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-members GROUP USER...",
		Short: "Add students to a group in postgres",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			applyOverrides(v, &cfg)
			log := setupLogging(v, cfg.Log.Level, cfg.Log.Format)

			grpCod, usrCods, err := parseMembers(args)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := addMembers(cmd.Context(), postgres.NewEnrolment(pool), grpCod, usrCods); err != nil {
				return err
			}
			log.Info("group members added", "group", grpCod, "members", len(usrCods))
			return nil
		},
	}
	cmd.Flags().String("postgres-url", "", "postgres connection URL")
	return cmd
}

func parseMembers(args []string) (int64, []int64, error) {
	codes := make([]int64, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil || n <= 0 {
			return 0, nil, fmt.Errorf("invalid code %q", a)
		}
		codes = append(codes, n)
	}
	return codes[0], codes[1:], nil
}

func addMembers(ctx context.Context, groups groupWriter, grpCod int64, usrCods []int64) error {
	for _, u := range usrCods {
		if err := groups.AddMember(ctx, grpCod, u); err != nil {
			return fmt.Errorf("add user %d to group %d: %w", u, grpCod, err)
		}
	}
	return nil
}
