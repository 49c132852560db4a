package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// idChunkSize keeps IN (...) lists well under SQLite's bound-variable limit.
const idChunkSize = 500

// PutSubjects inserts or replaces subjects by id.
//
// The batch is written in a single transaction: either every subject is
// stored or none is. Last write wins for a repeated id.
func (db *DB) PutSubjects(ctx context.Context, subjects []schema.Subject) error {
	if len(subjects) == 0 {
		return nil
	}

	rows := make([]subjectRow, 0, len(subjects))
	for i := range subjects {
		if err := subjects[i].Validate(); err != nil {
			return fmt.Errorf("invalid subject: %w", err)
		}
		rows = append(rows, subjectToRow(&subjects[i]))
	}

	query := `
	INSERT INTO subjects (` + subjectColumns + `)
	VALUES (:id, :kind, :level, :characters, :readings, :meanings,
		:meaning_mnemonic, :reading_mnemonic, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		level = excluded.level,
		characters = excluded.characters,
		readings = excluded.readings,
		meanings = excluded.meanings,
		meaning_mnemonic = excluded.meaning_mnemonic,
		reading_mnemonic = excluded.reading_mnemonic,
		updated_at = excluded.updated_at
	`

	if err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare subject upsert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row); err != nil {
				return fmt.Errorf("failed to upsert subject %d: %w", row.ID, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	db.broker.publish(Change{
		Collection: CollectionSubjects,
		Op:         OpPut,
		IDs:        lo.Map(subjects, func(s schema.Subject, _ int) int64 { return s.ID }),
	})
	return nil
}

// AllSubjects returns every cached subject ordered by id.
func (db *DB) AllSubjects(ctx context.Context) ([]schema.Subject, error) {
	var rows []subjectRow
	query := `SELECT ` + subjectColumns + ` FROM subjects ORDER BY id ASC`
	if err := db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return toSubjects(rows)
}

// SubjectByID returns a single subject, or ErrNotFound.
func (db *DB) SubjectByID(ctx context.Context, id int64) (*schema.Subject, error) {
	var row subjectRow
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = ?`
	if err := db.conn.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subject %d: %w", id, err)
	}
	s, err := row.toSubject()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SubjectsByIDs returns the subjects with the given ids in the order requested.
// Ids that are not cached are silently omitted; duplicates are returned once.
func (db *DB) SubjectsByIDs(ctx context.Context, ids []int64) ([]schema.Subject, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []subjectRow
	for _, chunk := range lo.Chunk(ids, idChunkSize) {
		query, args, err := sqlx.In(`SELECT `+subjectColumns+` FROM subjects WHERE id IN (?)`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build subject query: %w", err)
		}
		var part []subjectRow
		if err := db.conn.SelectContext(ctx, &part, db.conn.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get subjects by id: %w", err)
		}
		rows = append(rows, part...)
	}

	byID := lo.KeyBy(rows, func(r subjectRow) int64 { return r.ID })
	ordered := make([]subjectRow, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return toSubjects(ordered)
}

// SubjectsByKindAndLevel returns the subjects of any of the given kinds at
// one level, ordered by id.
func (db *DB) SubjectsByKindAndLevel(ctx context.Context, kinds []schema.Kind, level int) ([]schema.Subject, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+subjectColumns+` FROM subjects WHERE kind IN (?) AND level = ? ORDER BY id ASC`,
		kindStrings(kinds), level,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build subject query: %w", err)
	}

	var rows []subjectRow
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get subjects for level %d: %w", level, err)
	}
	return toSubjects(rows)
}

// LatestSubjectUpdate returns the greatest updated_at among cached subjects of
// the given kinds, or nil when none are cached. This is the incremental sync
// cursor for those kinds.
func (db *DB) LatestSubjectUpdate(ctx context.Context, kinds ...schema.Kind) (*time.Time, error) {
	if len(kinds) == 0 {
		kinds = schema.Kinds
	}

	query, args, err := sqlx.In(`SELECT MAX(updated_at) FROM subjects WHERE kind IN (?)`, kindStrings(kinds))
	if err != nil {
		return nil, fmt.Errorf("failed to build cursor query: %w", err)
	}

	var latest sql.NullString
	if err := db.conn.GetContext(ctx, &latest, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to read subject cursor: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject cursor %q: %w", latest.String, err)
	}
	return &t, nil
}

// ClearSubjects removes every cached subject.
func (db *DB) ClearSubjects(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM subjects`); err != nil {
		return fmt.Errorf("failed to clear subjects: %w", err)
	}
	db.broker.publish(Change{Collection: CollectionSubjects, Op: OpClear})
	return nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toSubjects(rows []subjectRow) ([]schema.Subject, error) {
	out := make([]schema.Subject, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSubject()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func kindStrings(kinds []schema.Kind) []string {
	return lo.Map(kinds, func(k schema.Kind, _ int) string { return string(k) })
}
