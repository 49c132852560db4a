package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/marks"
	"github.com/kanjideck/kanjideck/internal/study"
	"github.com/kanjideck/kanjideck/internal/tui"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var listFlags selectionOverrides

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "study",
	Short:   "List the items of a study section",
	Long: `List the items of a study section in study order.

Level, learned-only and sort default to your settings; flags override them
for this run only. --due keeps items whose next review is at or before the
given time, written in plain English:

  kd list --due now
  kd list --section vocabulary --due "tomorrow 9am"
  kd list --due "in 3 hours" --sort next_review`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dueExpr, _ := cmd.Flags().GetString("due")

		var dueBy time.Time
		if dueExpr != "" {
			var err error
			if dueBy, err = parseDue(dueExpr, time.Now()); err != nil {
				return err
			}
		}

		items, q, err := selectItems(ctx, cmd, &listFlags)
		if err != nil {
			return err
		}
		if dueExpr != "" {
			items = lo.Filter(items, func(it study.Item, _ int) bool {
				return it.Assignment.DueBy(dueBy)
			})
		}

		if len(items) == 0 {
			fmt.Println(ui.RenderMuted(emptyMessage(q)))
			return nil
		}

		rows := make([][]string, 0, len(items))
		for _, it := range items {
			next := "-"
			if at := it.AvailableAt(); at != nil {
				next = at.Local().Format("2006-01-02 15:04")
			}
			learned := ""
			if it.Learned() {
				learned = "✓"
			}
			rows = append(rows, []string{
				strconv.FormatInt(it.ID(), 10),
				it.Subject.Characters,
				it.Subject.Kind.Label(),
				strconv.Itoa(it.Subject.Level),
				it.Subject.PrimaryReading(),
				it.Subject.PrimaryMeaning(),
				next,
				learned,
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Item", "Kind", "Level", "Reading", "Meaning", "Next review", "Learned"}, rows))
		fmt.Println(ui.RenderMuted(fmt.Sprintf("%d items", len(items))))
		return nil
	},
}

// selectItems runs a one-shot selection with settings plus flag overrides.
func selectItems(ctx context.Context, cmd *cobra.Command, o *selectionOverrides) ([]study.Item, study.Query, error) {
	store, err := openCache(ctx)
	if err != nil {
		return nil, study.Query{}, err
	}
	prefs, err := openSettings()
	if err != nil {
		return nil, study.Query{}, err
	}
	ids, err := markedIDs(o.section)
	if err != nil {
		return nil, study.Query{}, err
	}
	q, err := o.query(cmd.Flags(), prefs.Get(), ids)
	if err != nil {
		return nil, study.Query{}, err
	}
	items, err := study.NewSelector(store).Select(ctx, q)
	if err != nil {
		return nil, q, err
	}
	return items, q, nil
}

func emptyMessage(q study.Query) string {
	if q.Section == study.SectionMarked {
		return "No marked items."
	}
	if q.LimitToLearned {
		return fmt.Sprintf("No learned %s items at level %d.", q.Section, q.Level)
	}
	return fmt.Sprintf("No %s items at level %d. Run kd sync to fetch them.", q.Section, q.Level)
}

// parseDue turns "now", an RFC 3339 time or a natural-language phrase into
// an absolute time relative to now.
func parseDue(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if strings.EqualFold(expr, "now") {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --due %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --due %q", expr)
	}
	return r.Time, nil
}

var studyFlags selectionOverrides

var studyCmd = &cobra.Command{
	Use:     "study",
	GroupID: "study",
	Short:   "Start an interactive study session",
	Long: `Start an interactive study session.

Type the reading in romaji; it is shown as hiragana while you type. Enter
checks the answer. A trailing "n" stays unconverted until the next letter
decides between ん and な-row syllables; type "nn" for a final ん.

Unless --offline is given, a background sync runs at startup and the deck
refreshes when it brings new records. Settings edited elsewhere apply to the
next reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		offline, _ := cmd.Flags().GetBool("offline")

		section, err := study.ParseSection(studyFlags.section)
		if err != nil {
			return err
		}
		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		m, err := openMarks()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		query := func() study.Query {
			ids, err := m.IDs()
			if err != nil {
				log.WithError(err).Warn("failed to read marks")
			}
			q, err := studyFlags.query(flags, prefs.Get(), ids)
			if err != nil {
				log.WithError(err).Warn("invalid study flags, using settings")
				return prefs.Get().Query(section, ids)
			}
			return q
		}
		if _, err := studyFlags.query(flags, prefs.Get(), nil); err != nil {
			return err
		}
		deck := study.NewDeck(study.NewSelector(store), query, nil)

		// Log lines would tear the alternate screen.
		if cfg.Log.File == "" {
			log.SetOutput(io.Discard)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		changes, unsubscribe := store.Subscribe()
		defer unsubscribe()

		go func() {
			if err := prefs.Watch(ctx); err != nil {
				log.WithError(err).Warn("settings watcher stopped")
			}
		}()
		prefChanges, unsubscribePrefs := prefs.Subscribe()
		defer unsubscribePrefs()
		go func() {
			for range prefChanges {
				_ = deck.Reload(ctx)
			}
		}()

		if !offline && credential(prefs)() != "" {
			go newSyncer(store, prefs).Preload(ctx)
		}

		return tui.Run(ctx, deck, m, tui.Options{Changes: changes})
	},
}

var checkCmd = &cobra.Command{
	Use:     "check <subject-id> <answer>",
	GroupID: "study",
	Short:   "Check one answer without starting a session",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reveal, _ := cmd.Flags().GetBool("reveal")

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid subject id %q", args[0])
		}
		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		sub, err := store.SubjectByID(ctx, id)
		if err != nil {
			return err
		}

		res := study.NewSession().Check(*sub, args[1])
		label := ui.RenderSubject(sub.Characters)
		if res.Correct {
			ui.OK(os.Stdout, "%s %s", label, res.Normalized)
		} else {
			ui.Fail(os.Stdout, "%s %s", label, res.Normalized)
		}
		if reveal {
			fmt.Println(ui.RenderMuted("accepted: ") + strings.Join(study.AcceptedAnswers(*sub), ", "))
		}
		if !res.Correct {
			return exitCode(2)
		}
		return nil
	},
}

func init() {
	addSelectionFlags(listCmd, &listFlags)
	addSelectionFlags(studyCmd, &studyFlags)
	listCmd.Flags().String("due", "", `only items due by this time ("now", "tomorrow 9am", RFC 3339)`)
	studyCmd.Flags().Bool("offline", false, "skip the startup sync")
	checkCmd.Flags().Bool("reveal", false, "print the accepted answers")

	rootCmd.AddCommand(listCmd, studyCmd, checkCmd)
}

var _ tui.Marker = (*marks.Store)(nil)
