package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// PutAssignments inserts or replaces assignments by id in one transaction.
func (db *DB) PutAssignments(ctx context.Context, assignments []schema.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	rows := make([]assignmentRow, 0, len(assignments))
	for i := range assignments {
		if err := assignments[i].Validate(); err != nil {
			return fmt.Errorf("invalid assignment: %w", err)
		}
		rows = append(rows, assignmentToRow(&assignments[i]))
	}

	query := `
	INSERT INTO assignments (` + assignmentColumns + `)
	VALUES (:id, :subject_id, :subject_kind, :level,
		:available_at, :started_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		subject_id = excluded.subject_id,
		subject_kind = excluded.subject_kind,
		level = excluded.level,
		available_at = excluded.available_at,
		started_at = excluded.started_at,
		updated_at = excluded.updated_at
	`

	if err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare assignment upsert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row); err != nil {
				return fmt.Errorf("failed to upsert assignment %d: %w", row.ID, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	db.broker.publish(Change{
		Collection: CollectionAssignments,
		Op:         OpPut,
		IDs:        lo.Map(assignments, func(a schema.Assignment, _ int) int64 { return a.ID }),
	})
	return nil
}

// AllAssignments returns every cached assignment ordered by id.
func (db *DB) AllAssignments(ctx context.Context) ([]schema.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT ` + assignmentColumns + ` FROM assignments ORDER BY id ASC`
	if err := db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return toAssignments(rows)
}

// AssignmentsBySubjectIDs returns the assignments attached to any of the given
// subjects, ordered by subject id. Subjects without an assignment are omitted.
func (db *DB) AssignmentsBySubjectIDs(ctx context.Context, subjectIDs []int64) ([]schema.Assignment, error) {
	subjectIDs = lo.Uniq(subjectIDs)
	if len(subjectIDs) == 0 {
		return nil, nil
	}

	var rows []assignmentRow
	for _, chunk := range lo.Chunk(subjectIDs, idChunkSize) {
		query, args, err := sqlx.In(
			`SELECT `+assignmentColumns+` FROM assignments WHERE subject_id IN (?) ORDER BY subject_id ASC, id ASC`,
			chunk,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build assignment query: %w", err)
		}
		var part []assignmentRow
		if err := db.conn.SelectContext(ctx, &part, db.conn.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get assignments by subject: %w", err)
		}
		rows = append(rows, part...)
	}
	return toAssignments(rows)
}

// AssignmentsByLevel returns the assignments recorded at one level.
func (db *DB) AssignmentsByLevel(ctx context.Context, level int) ([]schema.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE level = ? ORDER BY id ASC`
	if err := db.conn.SelectContext(ctx, &rows, query, level); err != nil {
		return nil, fmt.Errorf("failed to get assignments for level %d: %w", level, err)
	}
	return toAssignments(rows)
}

// LatestAssignmentUpdate returns the greatest updated_at among cached
// assignments, or nil when none are cached.
func (db *DB) LatestAssignmentUpdate(ctx context.Context) (*time.Time, error) {
	var latest sql.NullString
	if err := db.conn.GetContext(ctx, &latest, `SELECT MAX(updated_at) FROM assignments`); err != nil {
		return nil, fmt.Errorf("failed to read assignment cursor: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse assignment cursor %q: %w", latest.String, err)
	}
	return &t, nil
}

// ClearAssignments removes every cached assignment.
func (db *DB) ClearAssignments(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	db.broker.publish(Change{Collection: CollectionAssignments, Op: OpClear})
	return nil
}

func toAssignments(rows []assignmentRow) ([]schema.Assignment, error) {
	out := make([]schema.Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAssignment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
