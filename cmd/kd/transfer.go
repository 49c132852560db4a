package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/cache/importer"
	"github.com/kanjideck/kanjideck/internal/export"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "advanced",
	Short:   "Load WaniKani records from a JSONL dump",
	Long: `Load subjects and assignments from a file of WaniKani API objects, one
per line. Lines may be single resources or whole collection pages as
returned by the API. Unsupported objects and invalid lines are counted and
skipped.

Imported records advance the sync cursors like synced ones, so a following
"kd sync" only fetches what changed after the dump.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		batch, _ := cmd.Flags().GetInt("batch-size")

		store, err := openCache(ctx)
		if err != nil {
			return err
		}

		start := time.Now()
		result, err := importer.ImportFile(ctx, store, args[0], importer.Options{
			BatchSize: batch,
			DryRun:    dryRun,
			Logger:    log,
		})
		if err != nil {
			return err
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		ui.OK(os.Stdout, "%s %d subjects and %d assignments from %d lines in %v",
			verb, result.Subjects, result.Assignments, result.Lines, time.Since(start).Round(time.Millisecond))
		if result.Unsupported > 0 {
			ui.Warn(os.Stdout, "%d unsupported objects ignored", result.Unsupported)
		}
		if result.Skipped > 0 {
			ui.Warn(os.Stdout, "%d invalid lines skipped", result.Skipped)
			for _, e := range result.Errors {
				fmt.Println(ui.RenderMuted("  " + e))
			}
		}
		return nil
	},
}

var exportFlags selectionOverrides

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "advanced",
	Short:   "Write a study section to YAML or Excel",
	Long: `Write the items of a study section, in study order, as YAML or as an
Excel workbook. The format follows --format, or the extension of --out.

  kd export --section vocabulary --level 5 --out level5.xlsx
  kd export --section marked > marked.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		formatName, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		if formatName == "" {
			formatName = string(export.FormatYAML)
			if ext := filepath.Ext(out); ext != "" {
				formatName = ext
			}
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		if format == export.FormatXLSX && (out == "" || out == "-") && ui.IsTerminal(os.Stdout) {
			return fmt.Errorf("refusing to write a workbook to the terminal, use --out")
		}

		items, _, err := selectItems(ctx, cmd, &exportFlags)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}
		if err := export.Write(w, format, items); err != nil {
			return err
		}
		if w != os.Stdout {
			ui.OK(os.Stderr, "Exported %d items to %s", len(items), out)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "decode and count without writing")
	importCmd.Flags().Int("batch-size", importer.DefaultBatchSize, "records written per transaction")

	addSelectionFlags(exportCmd, &exportFlags)
	exportCmd.Flags().StringP("format", "f", "", "yaml or xlsx (default from --out, else yaml)")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(importCmd, exportCmd)
}
