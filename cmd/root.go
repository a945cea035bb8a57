package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openswoop/rosterwatch/pkg/app"
	"github.com/openswoop/rosterwatch/pkg/config"
	"github.com/openswoop/rosterwatch/pkg/logger"
)

const (
	exitFatal   = 1
	exitPartial = 2
)

var cfgFile string
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rosterwatch",
	Short: "A tool for tracking instructor changes in Canvas courses",
	Long: `Polls Canvas for the courses of a term and their instructors, compares
them with the previous run and records every instructor added to or removed
from a course in an append-only change log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		logger.Configure(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Error().Err(err).Msg("rosterwatch failed")
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, app.ErrPartialFetch) {
		return exitPartial
	}
	return exitFatal
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Human readable console logs")
	bindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag("log.pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

// termArg lets the positional term override the configured one.
func termArg(args []string) {
	if len(args) > 0 && args[0] != "" {
		cfg.Term = args[0]
	}
}
