package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Enrolment decides entitlement from the groups a match is restricted to.
// A match without groups is open to every student.
type Enrolment struct {
	pool *pgxpool.Pool
}

func NewEnrolment(pool *pgxpool.Pool) *Enrolment {
	return &Enrolment{pool: pool}
}

func (e *Enrolment) StudentIsEntitledToPlay(ctx context.Context, matchCod, usrCod int64) (bool, error) {
	var ok bool
	err := e.pool.QueryRow(ctx, `
		SELECT NOT EXISTS (SELECT 1 FROM match_groups WHERE match_cod=$1)
		    OR EXISTS (
		        SELECT 1 FROM match_groups g
		        JOIN group_members m ON m.grp_cod = g.grp_cod
		        WHERE g.match_cod=$1 AND m.usr_cod=$2)`,
		matchCod, usrCod).Scan(&ok)
	return ok, err
}

// RestrictToGroups replaces the groups a match is open to.
func (e *Enrolment) RestrictToGroups(ctx context.Context, matchCod int64, grpCods ...int64) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM match_groups WHERE match_cod=$1`, matchCod); err != nil {
		return err
	}
	for _, g := range grpCods {
		if _, err := tx.Exec(ctx, `INSERT INTO match_groups (match_cod, grp_cod) VALUES ($1, $2)`, matchCod, g); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AddMember puts a student into a group.
func (e *Enrolment) AddMember(ctx context.Context, grpCod, usrCod int64) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO group_members (grp_cod, usr_cod) VALUES ($1, $2) ON CONFLICT DO NOTHING`, grpCod, usrCod)
	return err
}
