package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/settings"
	"github.com/kanjideck/kanjideck/internal/study"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "study",
	Short:   "Show or change study settings",
	Long: `Show or change study settings.

Settings are stored in settings.toml in the data directory. A running
"kd study" or "kd daemon" picks up changes made here.

Keys:
  api_key           WaniKani personal access token
  level             level shown in the kanji and vocabulary sections (1-60)
  limit_to_learned  only show items you have started (true/false)
  sort              id, next_review or random
  marked_sort       sort for the marked section`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsShowCmd.RunE(cmd, args)
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		p := prefs.Get()
		fmt.Println(ui.RenderTitle("Settings") + "  " + ui.RenderMuted(prefs.Path()))
		fmt.Printf("  api_key           %s\n", maskKey(p.APIKey))
		fmt.Printf("  level             %d\n", p.Level)
		fmt.Printf("  limit_to_learned  %t\n", p.LimitToLearned)
		fmt.Printf("  sort              %s\n", p.Sort)
		fmt.Printf("  marked_sort       %s\n", p.MarkedSort)
		if cfg.API.Key != "" {
			fmt.Println(ui.RenderMuted("  (api.key from config or KD_API_KEY overrides api_key)"))
		}
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return ui.RenderMuted("(not set)")
	}
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		apply, err := settingSetter(args[0], args[1])
		if err != nil {
			return err
		}
		if err := prefs.Update(apply); err != nil {
			return err
		}
		ui.OK(os.Stdout, "Set %s", args[0])
		return nil
	},
}

// settingSetter parses value for key and returns the update to apply.
func settingSetter(key, value string) (func(*settings.Settings), error) {
	switch key {
	case "api_key":
		value = strings.TrimSpace(value)
		return func(s *settings.Settings) { s.APIKey = value }, nil
	case "level":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", settings.ErrInvalidLevel, value)
		}
		return func(s *settings.Settings) { s.Level = n }, nil
	case "limit_to_learned":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("limit_to_learned must be true or false (got %q)", value)
		}
		return func(s *settings.Settings) { s.LimitToLearned = b }, nil
	case "sort", "marked_sort":
		mode, err := study.ParseSortMode(value)
		if err != nil {
			return nil, err
		}
		if key == "sort" {
			return func(s *settings.Settings) { s.Sort = mode }, nil
		}
		return func(s *settings.Settings) { s.MarkedSort = mode }, nil
	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}

var settingsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit settings in an interactive form",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		p := prefs.Get()

		apiKey := p.APIKey
		level := strconv.Itoa(p.Level)
		learned := p.LimitToLearned
		sortMode := p.Sort
		markedSort := p.MarkedSort

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("WaniKani API key").
					Description("Personal access token with read access").
					EchoMode(huh.EchoModePassword).
					Value(&apiKey),
				huh.NewInput().
					Title("Level").
					Value(&level).
					Validate(func(s string) error {
						n, err := strconv.Atoi(s)
						if err != nil || n < 1 || n > settings.MaxLevel {
							return fmt.Errorf("enter a level from 1 to %d", settings.MaxLevel)
						}
						return nil
					}),
				huh.NewConfirm().
					Title("Only show items you have started?").
					Value(&learned),
			),
			huh.NewGroup(
				huh.NewSelect[study.SortMode]().
					Title("Sort kanji and vocabulary by").
					Options(sortOptions()...).
					Value(&sortMode),
				huh.NewSelect[study.SortMode]().
					Title("Sort marked items by").
					Options(sortOptions()...).
					Value(&markedSort),
			),
		)
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println(ui.RenderMuted("No changes saved."))
				return nil
			}
			return err
		}

		n, _ := strconv.Atoi(level)
		if err := prefs.Update(func(s *settings.Settings) {
			s.APIKey = strings.TrimSpace(apiKey)
			s.Level = n
			s.LimitToLearned = learned
			s.Sort = sortMode
			s.MarkedSort = markedSort
		}); err != nil {
			return err
		}
		ui.OK(os.Stdout, "Settings saved")
		return nil
	},
}

func sortOptions() []huh.Option[study.SortMode] {
	return []huh.Option[study.SortMode]{
		huh.NewOption("ID", study.SortByID),
		huh.NewOption("Next review", study.SortByNextReview),
		huh.NewOption("Random", study.SortRandom),
	}
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsEditCmd)
	rootCmd.AddCommand(settingsCmd)
}
