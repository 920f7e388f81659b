package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Krish-Depani/session-admission/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var env *config.Env

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "session-admission",
	Short: "Concurrent session admission control service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		env, err = config.LoadEnv()
		if err != nil {
			return err
		}
		setupLogging(env.LogLevel, env.LogFormat)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

// Execute runs the root command and is called by main.main()
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogging(level, format string) {
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
