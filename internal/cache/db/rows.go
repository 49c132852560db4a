package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// timeLayout is fixed-width so that lexical order of the stored strings
// matches chronological order. MAX(updated_at) relies on this.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by older builds may carry plain RFC3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
// NULL maps to nil; an unparseable string is an error.
func nullStringToTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type readingList []schema.Reading

type meaningList []schema.Meaning

// Scan implements sql.Scanner
func (v *readingList) Scan(src any) error {
	return scanJSON(src, v, "readings")
}

// Value implements driver.Valuer
func (v readingList) Value() (driver.Value, error) {
	return valueJSON(v, v == nil)
}

// Scan implements sql.Scanner
func (v *meaningList) Scan(src any) error {
	return scanJSON(src, v, "meanings")
}

// Value implements driver.Valuer
func (v meaningList) Value() (driver.Value, error) {
	return valueJSON(v, v == nil)
}

func scanJSON(src any, dst any, column string) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, dst)
	case string:
		if data == "" {
			return nil
		}
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("%s: unsupported src type %T", column, src)
	}
}

func valueJSON(v any, isNil bool) (driver.Value, error) {
	if isNil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type subjectRow struct {
	ID              int64       `db:"id"`
	Kind            string      `db:"kind"`
	Level           int         `db:"level"`
	Characters      string      `db:"characters"`
	Readings        readingList `db:"readings"`
	Meanings        meaningList `db:"meanings"`
	MeaningMnemonic string      `db:"meaning_mnemonic"`
	ReadingMnemonic string      `db:"reading_mnemonic"`
	UpdatedAt       string      `db:"updated_at"`
}

const subjectColumns = `id, kind, level, characters, readings, meanings,
	meaning_mnemonic, reading_mnemonic, updated_at`

func subjectToRow(s *schema.Subject) subjectRow {
	return subjectRow{
		ID:              s.ID,
		Kind:            string(s.Kind),
		Level:           s.Level,
		Characters:      s.Characters,
		Readings:        readingList(s.Readings),
		Meanings:        meaningList(s.Meanings),
		MeaningMnemonic: s.MeaningMnemonic,
		ReadingMnemonic: s.ReadingMnemonic,
		UpdatedAt:       formatTime(s.UpdatedAt),
	}
}

func (r subjectRow) toSubject() (schema.Subject, error) {
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return schema.Subject{}, fmt.Errorf("subject %d: failed to parse updated_at: %w", r.ID, err)
	}
	return schema.Subject{
		ID:              r.ID,
		Kind:            schema.Kind(r.Kind),
		Level:           r.Level,
		Characters:      r.Characters,
		Readings:        []schema.Reading(r.Readings),
		Meanings:        []schema.Meaning(r.Meanings),
		MeaningMnemonic: r.MeaningMnemonic,
		ReadingMnemonic: r.ReadingMnemonic,
		UpdatedAt:       updatedAt,
	}, nil
}

type assignmentRow struct {
	ID          int64          `db:"id"`
	SubjectID   int64          `db:"subject_id"`
	SubjectKind string         `db:"subject_kind"`
	Level       int            `db:"level"`
	AvailableAt sql.NullString `db:"available_at"`
	StartedAt   sql.NullString `db:"started_at"`
	UpdatedAt   string         `db:"updated_at"`
}

const assignmentColumns = `id, subject_id, subject_kind, level,
	available_at, started_at, updated_at`

func assignmentToRow(a *schema.Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		SubjectID:   a.SubjectID,
		SubjectKind: string(a.SubjectKind),
		Level:       a.Level,
		AvailableAt: timeToNullString(a.AvailableAt),
		StartedAt:   timeToNullString(a.StartedAt),
		UpdatedAt:   formatTime(a.UpdatedAt),
	}
}

func (r assignmentRow) toAssignment() (schema.Assignment, error) {
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return schema.Assignment{}, fmt.Errorf("assignment %d: failed to parse updated_at: %w", r.ID, err)
	}
	availableAt, err := nullStringToTime(r.AvailableAt)
	if err != nil {
		return schema.Assignment{}, fmt.Errorf("assignment %d: failed to parse available_at: %w", r.ID, err)
	}
	startedAt, err := nullStringToTime(r.StartedAt)
	if err != nil {
		return schema.Assignment{}, fmt.Errorf("assignment %d: failed to parse started_at: %w", r.ID, err)
	}
	return schema.Assignment{
		ID:          r.ID,
		SubjectID:   r.SubjectID,
		SubjectKind: schema.Kind(r.SubjectKind),
		Level:       r.Level,
		AvailableAt: availableAt,
		StartedAt:   startedAt,
		UpdatedAt:   updatedAt,
	}, nil
}
