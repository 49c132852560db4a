package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/marks"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var markCmd = &cobra.Command{
	Use:     "mark",
	GroupID: "study",
	Short:   "Manage items marked for review",
	Long: `Manage items marked for review.

Marks are kept apart from the cache: "kd clear" does not remove them, and a
mark whose subject is not cached is skipped by the marked section until the
next sync brings it back.`,
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid subject id %q", a)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

var markAddCmd = &cobra.Command{
	Use:   "add <subject-id>...",
	Short: "Mark subjects for review",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		m, err := openMarks()
		if err != nil {
			return err
		}

		subjects, err := store.SubjectsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		found := lo.KeyBy(subjects, func(s schema.Subject) int64 { return s.ID })
		for _, id := range ids {
			sub, ok := found[id]
			if !ok {
				ui.Warn(os.Stderr, "Subject %d is not cached, skipped", id)
				continue
			}
			if err := m.Add(marks.FromSubject(sub)); err != nil {
				return err
			}
			ui.OK(os.Stdout, "Marked %s (%d)", ui.RenderSubject(sub.Characters), id)
		}
		return nil
	},
}

var markRmCmd = &cobra.Command{
	Use:     "rm <subject-id>...",
	Aliases: []string{"remove"},
	Short:   "Unmark subjects",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		m, err := openMarks()
		if err != nil {
			return err
		}
		for _, id := range ids {
			existed, err := m.Remove(id)
			if err != nil {
				return err
			}
			if existed {
				ui.OK(os.Stdout, "Unmarked %d", id)
			} else {
				ui.Warn(os.Stderr, "Subject %d was not marked", id)
			}
		}
		return nil
	},
}

var markListCmd = &cobra.Command{
	Use:   "list",
	Short: "List marked subjects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := openMarks()
		if err != nil {
			return err
		}
		list, err := m.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println(ui.RenderMuted("No marked items."))
			return nil
		}

		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		subjects, err := store.SubjectsByIDs(ctx, lo.Map(list, func(mk marks.Mark, _ int) int64 { return mk.SubjectID }))
		if err != nil {
			return err
		}
		found := lo.KeyBy(subjects, func(s schema.Subject) int64 { return s.ID })

		rows := make([][]string, 0, len(list))
		for _, mk := range list {
			item, meaning := ui.RenderMuted("(not cached)"), ""
			if sub, ok := found[mk.SubjectID]; ok {
				item, meaning = sub.Characters, sub.PrimaryMeaning()
			}
			rows = append(rows, []string{
				strconv.FormatInt(mk.SubjectID, 10),
				item,
				mk.Kind.Label(),
				strconv.Itoa(mk.Level),
				meaning,
				mk.MarkedAt.Local().Format("2006-01-02"),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Item", "Kind", "Level", "Meaning", "Marked"}, rows))
		return nil
	},
}

var markExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write marks as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		m, err := openMarks()
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
		return m.Export(w)
	},
}

var markImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add marks from a YAML export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarks()
		if err != nil {
			return err
		}

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			// #nosec G304 - path from CLI
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		n, err := m.Import(r)
		if err != nil {
			return err
		}
		ui.OK(os.Stdout, "Imported %d marks", n)
		return nil
	},
}

var markClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every mark",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to remove all marks without --force")
		}
		m, err := openMarks()
		if err != nil {
			return err
		}
		if err := m.Clear(); err != nil {
			return err
		}
		ui.OK(os.Stdout, "Marks cleared")
		return nil
	},
}

func init() {
	markExportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	markClearCmd.Flags().BoolP("force", "f", false, "confirm deletion")

	markCmd.AddCommand(markAddCmd, markRmCmd, markListCmd, markExportCmd, markImportCmd, markClearCmd)
	rootCmd.AddCommand(markCmd)
}
