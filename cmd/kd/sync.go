package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	cachesync "github.com/kanjideck/kanjideck/internal/cache/sync"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Fetch new and updated records from WaniKani",
	Long: `Fetch subjects and assignments updated since the last sync.

Each collection keeps its own cursor, the newest update time stored locally,
so a sync only asks for records changed after it. Pages are written as they
arrive: an interrupted sync keeps what it fetched and the next run resumes.

Without flags all three collections sync concurrently.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		onlyKanji, _ := cmd.Flags().GetBool("kanji")
		onlyVocab, _ := cmd.Flags().GetBool("vocabulary")
		onlyAssign, _ := cmd.Flags().GetBool("assignments")

		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		if credential(prefs)() == "" {
			return errNoCredential
		}
		syncer := newSyncer(store, prefs)

		fmt.Printf("%s Syncing from %s...\n", ui.RenderAccent("🔄"), cfg.API.BaseURL)
		start := time.Now()

		var results []cachesync.Result
		if !onlyKanji && !onlyVocab && !onlyAssign {
			results, err = syncer.SyncAll(ctx)
		} else {
			var errs []error
			run := func(enabled bool, fn func() (cachesync.Result, error)) {
				if !enabled {
					return
				}
				r, err := fn()
				r.Err = err
				results = append(results, r)
				errs = append(errs, err)
			}
			run(onlyKanji, func() (cachesync.Result, error) { return syncer.SyncKanji(ctx) })
			run(onlyVocab, func() (cachesync.Result, error) { return syncer.SyncVocabulary(ctx) })
			run(onlyAssign, func() (cachesync.Result, error) { return syncer.SyncAssignments(ctx) })
			err = errors.Join(errs...)
		}

		printResults(results)
		if err != nil {
			ui.Fail(os.Stderr, "Sync finished with errors in %v", time.Since(start).Round(time.Millisecond))
			return err
		}
		ui.OK(os.Stdout, "Sync complete in %v", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func printResults(results []cachesync.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		since := "full"
		if r.Since != nil {
			since = r.Since.Local().Format("2006-01-02 15:04")
		}
		status := ui.RenderPass("ok")
		switch {
		case r.Err != nil:
			status = ui.RenderFail(r.Err.Error())
		case r.Skipped:
			status = ui.RenderWarn("skipped")
		case r.Ignored > 0:
			status = ui.RenderPass(fmt.Sprintf("ok (%d ignored)", r.Ignored))
		}
		rows = append(rows, []string{
			string(r.Chain),
			since,
			strconv.Itoa(r.Pages),
			strconv.Itoa(r.Records),
			r.Duration.Round(time.Millisecond).String(),
			status,
		})
	}
	fmt.Println(ui.Table([]string{"Collection", "Since", "Pages", "Records", "Took", "Status"}, rows))
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show cache contents and settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		remote, _ := cmd.Flags().GetBool("remote")

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

		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		subjectsAt, err := store.LatestSubjectUpdate(ctx)
		if err != nil {
			return err
		}
		assignmentsAt, err := store.LatestAssignmentUpdate(ctx)
		if err != nil {
			return err
		}
		marked, err := m.IDs()
		if err != nil {
			return err
		}

		p := prefs.Get()
		key := ui.RenderWarn("not set")
		if credential(prefs)() != "" {
			key = ui.RenderPass("set")
		}

		fmt.Println(ui.RenderTitle("Cache") + "  " + ui.RenderMuted(store.Path()))
		fmt.Printf("  Kanji:            %d\n", counts.Kanji)
		fmt.Printf("  Vocabulary:       %d (+%d kana-only)\n", counts.Vocabulary, counts.KanaVocabulary)
		fmt.Printf("  Assignments:      %d (%d started)\n", counts.Assignments, counts.Started)
		fmt.Printf("  Subjects synced:  %s\n", formatCursor(subjectsAt))
		fmt.Printf("  Assignments sync: %s\n", formatCursor(assignmentsAt))
		fmt.Println()
		fmt.Println(ui.RenderTitle("Settings") + "  " + ui.RenderMuted(prefs.Path()))
		fmt.Printf("  API key:          %s\n", key)
		fmt.Printf("  Level:            %d\n", p.Level)
		fmt.Printf("  Learned only:     %t\n", p.LimitToLearned)
		fmt.Printf("  Sort:             %s (marked: %s)\n", p.Sort, p.MarkedSort)
		fmt.Printf("  Marked items:     %d\n", len(marked))

		if !remote {
			return nil
		}
		token := credential(prefs)()
		if token == "" {
			return errNoCredential
		}
		user, err := newClient().WithToken(token).User(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch user: %w", err)
		}
		fmt.Println()
		fmt.Println(ui.RenderTitle("WaniKani"))
		fmt.Printf("  User:             %s\n", user.Username)
		fmt.Printf("  Level:            %d\n", user.Level)
		return nil
	},
}

func formatCursor(t *time.Time) string {
	if t == nil {
		return ui.RenderMuted("never")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "sync",
	Short:   "Delete every cached subject and assignment",
	Long: `Delete every cached subject and assignment.

Marked items and settings are kept. The next sync fetches everything again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to clear the cache without --force")
		}

		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		if err := store.ClearAll(ctx); err != nil {
			return err
		}
		ui.OK(os.Stdout, "Cache cleared")
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("kanji", false, "sync kanji only")
	syncCmd.Flags().Bool("vocabulary", false, "sync vocabulary only")
	syncCmd.Flags().Bool("assignments", false, "sync assignments only")
	statusCmd.Flags().Bool("remote", false, "also fetch the WaniKani user")
	clearCmd.Flags().BoolP("force", "f", false, "confirm deletion")

	rootCmd.AddCommand(syncCmd, statusCmd, clearCmd)
}
