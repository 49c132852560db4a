// Package importer loads WaniKani resources from a JSONL dump into the
// local cache, for offline use or to seed a cache without an API token.
//
// Each line holds one resource object exactly as the API returns it
// ({"id", "object", "data_updated_at", "data"}) or a whole collection page,
// whose data array is expanded. Lines that cannot be decoded are counted and
// skipped; objects the cache does not store, such as radicals, are counted
// separately.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// DefaultBatchSize is the number of records written per transaction.
const DefaultBatchSize = 500

// maxLine bounds a single line; collection pages can be large.
const maxLine = 16 << 20

// Store is the part of the cache the importer writes to.
type Store interface {
	PutSubjects(ctx context.Context, subjects []schema.Subject) error
	PutAssignments(ctx context.Context, assignments []schema.Assignment) error
}

// Options configures an import.
type Options struct {
	BatchSize int
	// DryRun decodes and counts without writing.
	DryRun bool
	Logger logrus.FieldLogger
}

// Result contains statistics about an import.
type Result struct {
	Lines       int
	Subjects    int
	Assignments int
	Unsupported int
	Skipped     int
	Errors      []string
}

// ImportFile imports the JSONL file at path.
func ImportFile(ctx context.Context, store Store, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()
	return Import(ctx, store, f, opts)
}

// Import reads JSONL from r and writes the records to store in batches.
// A failed write aborts the import; batches written before it are kept.
func Import(ctx context.Context, store Store, r io.Reader, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	log = log.WithField("component", "importer")

	imp := &importer{store: store, opts: opts, log: log, result: &Result{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return imp.result, err
		}
		imp.result.Lines++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := imp.line(ctx, line); err != nil {
			return imp.result, err
		}
	}
	if err := scanner.Err(); err != nil {
		return imp.result, fmt.Errorf("failed to read line %d: %w", imp.result.Lines+1, err)
	}

	if err := imp.flush(ctx); err != nil {
		return imp.result, err
	}
	log.WithFields(logrus.Fields{
		"subjects":    imp.result.Subjects,
		"assignments": imp.result.Assignments,
		"skipped":     imp.result.Skipped,
	}).Info("import complete")
	return imp.result, nil
}

type importer struct {
	store  Store
	opts   Options
	log    logrus.FieldLogger
	result *Result

	subjects    []schema.Subject
	assignments []schema.Assignment
}

func (imp *importer) line(ctx context.Context, line []byte) error {
	var head struct {
		Object string            `json:"object"`
		Data   []json.RawMessage `json:"data"`
	}
	// A resource's data is an object, so only collections decode cleanly
	// into a slice; for anything else fall through to DecodeResource.
	if err := json.Unmarshal(line, &head); err == nil && head.Object == "collection" {
		for _, raw := range head.Data {
			if err := imp.resource(ctx, raw); err != nil {
				return err
			}
		}
		return nil
	}
	return imp.resource(ctx, line)
}

func (imp *importer) resource(ctx context.Context, raw []byte) error {
	rec, err := wanikani.DecodeResource(raw)
	switch {
	case errors.Is(err, wanikani.ErrUnsupported):
		imp.result.Unsupported++
		return nil
	case err != nil:
		imp.result.Skipped++
		msg := fmt.Sprintf("line %d: %v", imp.result.Lines, err)
		imp.result.Errors = append(imp.result.Errors, msg)
		imp.log.Warn(msg)
		return nil
	}

	if rec.Subject != nil {
		imp.subjects = append(imp.subjects, *rec.Subject)
		imp.result.Subjects++
	}
	if rec.Assignment != nil {
		imp.assignments = append(imp.assignments, *rec.Assignment)
		imp.result.Assignments++
	}

	if len(imp.subjects)+len(imp.assignments) >= imp.opts.BatchSize {
		return imp.flush(ctx)
	}
	return nil
}

func (imp *importer) flush(ctx context.Context) error {
	defer func() {
		imp.subjects = imp.subjects[:0]
		imp.assignments = imp.assignments[:0]
	}()
	if imp.opts.DryRun {
		return nil
	}
	if len(imp.subjects) > 0 {
		if err := imp.store.PutSubjects(ctx, imp.subjects); err != nil {
			return fmt.Errorf("failed to write subjects: %w", err)
		}
	}
	if len(imp.assignments) > 0 {
		if err := imp.store.PutAssignments(ctx, imp.assignments); err != nil {
			return fmt.Errorf("failed to write assignments: %w", err)
		}
	}
	return nil
}
