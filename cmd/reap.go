package cmd

import (
	"github.com/Krish-Depani/session-admission/liveness"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		svc := liveness.NewService(store.Sessions(), newResolver(store))
		removed, err := svc.ReapExpired(cmd.Context())
		if err != nil {
			return err
		}
		log.WithField("removed", removed).Info("Reap complete")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(reapCmd)
}
