// Package export writes a selected deck to a file for use outside the app.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/study"
)

// Format is an output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat converts a flag value or file extension into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want yaml or xlsx)", s)
	}
}

// Row is one exported deck item.
type Row struct {
	ID          int64       `yaml:"id"`
	Characters  string      `yaml:"characters"`
	Kind        schema.Kind `yaml:"kind"`
	Level       int         `yaml:"level"`
	Readings    []string    `yaml:"readings,omitempty"`
	Meanings    []string    `yaml:"meanings,omitempty"`
	AvailableAt *time.Time  `yaml:"available_at,omitempty"`
	Started     bool        `yaml:"started"`
}

// Rows flattens deck items, keeping their order. Readings and meanings list
// accepted answers only, primary first.
func Rows(items []study.Item) []Row {
	return lo.Map(items, func(it study.Item, _ int) Row {
		return Row{
			ID:          it.Subject.ID,
			Characters:  it.Subject.Characters,
			Kind:        it.Subject.Kind,
			Level:       it.Subject.Level,
			Readings:    readings(it.Subject),
			Meanings:    meanings(it.Subject),
			AvailableAt: it.AvailableAt(),
			Started:     it.Learned(),
		}
	})
}

func readings(s schema.Subject) []string {
	accepted := lo.Filter(s.Readings, func(r schema.Reading, _ int) bool { return r.AcceptedAnswer })
	isPrimary := func(r schema.Reading, _ int) bool { return r.Primary }
	primary, rest := lo.Filter(accepted, isPrimary), lo.Reject(accepted, isPrimary)
	return lo.Map(append(primary, rest...), func(r schema.Reading, _ int) string { return r.Reading })
}

func meanings(s schema.Subject) []string {
	accepted := lo.Filter(s.Meanings, func(m schema.Meaning, _ int) bool { return m.AcceptedAnswer })
	isPrimary := func(m schema.Meaning, _ int) bool { return m.Primary }
	primary, rest := lo.Filter(accepted, isPrimary), lo.Reject(accepted, isPrimary)
	return lo.Map(append(primary, rest...), func(m schema.Meaning, _ int) string { return m.Meaning })
}

// Write writes items to w in the given format.
func Write(w io.Writer, format Format, items []study.Item) error {
	switch format {
	case FormatYAML:
		return WriteYAML(w, items)
	case FormatXLSX:
		return WriteXLSX(w, items)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteYAML writes items as a YAML list.
func WriteYAML(w io.Writer, items []study.Item) error {
	rows := Rows(items)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}
	return enc.Close()
}
