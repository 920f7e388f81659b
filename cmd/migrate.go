package cmd

import (
	"github.com/Krish-Depani/session-admission/database"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:       "migrate <up|down>",
	Short:     "Apply or roll back the SQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		url := database.PostgresURL(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort)
		log.WithField("direction", args[0]).Info("Applying SQL migration...")
		if err := database.Migrate(url, args[0]); err != nil {
			return err
		}
		log.Info("Migration successful")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
