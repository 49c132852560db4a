// Command kd is a kanji and vocabulary flashcard tool backed by WaniKani.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kanjideck/kanjideck/internal/config"
	"github.com/kanjideck/kanjideck/internal/logging"
	"github.com/kanjideck/kanjideck/internal/ui"
)

var (
	v = config.New()

	cfg *config.Config
	log *logrus.Logger

	configFile string
	envFile    string
	plain      bool
)

var rootCmd = &cobra.Command{
	Use:   "kd",
	Short: "Study WaniKani kanji and vocabulary from the terminal",
	Long: `kd keeps a local copy of your WaniKani subjects and assignments and lets
you drill readings offline.

Run "kd settings set api_key <token>" once, then "kd sync" to fill the cache
and "kd study" to start a session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
		if err != nil {
			return err
		}

		logger, closer, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		if err != nil {
			return err
		}
		log = logger
		closers = append(closers, closer)

		ui.Init(os.Stdout, plain)
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "study", Title: "Study:"},
		&cobra.Group{ID: "sync", Title: "Cache:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default searches $KD_HOME, the user config dir and .)")
	flags.StringVar(&envFile, "env-file", ".env", "env file loaded before reading configuration")
	flags.BoolVar(&plain, "plain", false, "disable colour output")
	flags.String("data-dir", "", "directory holding the cache, marks and settings")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")

	bindFlagToViper("data_dir", flags.Lookup("data-dir"))
	bindFlagToViper("log.level", flags.Lookup("log-level"))
	bindFlagToViper("log.format", flags.Lookup("log-format"))
}

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(v.BindPFlag(key, flag))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	closeAll()
	var code exitCode
	switch {
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitCode ends the process with a status and no message.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}
