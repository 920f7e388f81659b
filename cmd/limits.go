package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/spf13/cobra"
)

var (
	limitUser string
	limitMax  int
	limitNote string
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-user session limit overrides",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

var limitsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Allow a user more concurrent client instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		if limitMax < 1 {
			return fmt.Errorf("--max must be at least 1")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Policies().SetOverride(cmd.Context(), &models.SessionLimitOverride{
			UserID:      limitUser,
			MaxSessions: limitMax,
			Note:        limitNote,
		})
	},
}

var limitsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a user's override",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Policies().DeleteOverride(cmd.Context(), limitUser)
	},
}

var limitsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the tenant policy and every override",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		policy, err := newResolver(store).Tenant(cmd.Context())
		if err != nil {
			return err
		}
		overrides, err := store.Policies().ListOverrides(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "tenant\t%s\n", env.TenantEntityID)
		fmt.Fprintf(w, "globalMaxConcurrentUsers\t%d\n", policy.GlobalLimit)
		fmt.Fprintf(w, "timeoutWindow\t%s\n", policy.TimeoutWindow)
		fmt.Fprintf(w, "heartbeatInterval\t%s\n", policy.HeartbeatInterval)
		fmt.Fprintf(w, "validatorTimeout\t%s\n", policy.ValidatorTimeout)
		fmt.Fprintf(w, "reaperInterval\t%s\n\n", policy.ReaperInterval)
		fmt.Fprintln(w, "USER\tMAX SESSIONS\tNOTE")
		for _, o := range overrides {
			fmt.Fprintf(w, "%s\t%d\t%s\n", o.UserID, o.MaxSessions, o.Note)
		}
		return w.Flush()
	},
}

func init() {
	limitsSetCmd.Flags().StringVar(&limitUser, "user", "", "user identifier")
	limitsSetCmd.Flags().IntVar(&limitMax, "max", 0, "concurrent client instances allowed")
	limitsSetCmd.Flags().StringVar(&limitNote, "note", "", "why the override exists")
	_ = limitsSetCmd.MarkFlagRequired("user")
	_ = limitsSetCmd.MarkFlagRequired("max")

	limitsClearCmd.Flags().StringVar(&limitUser, "user", "", "user identifier")
	_ = limitsClearCmd.MarkFlagRequired("user")

	limitsCmd.AddCommand(limitsSetCmd, limitsClearCmd, limitsShowCmd)
	RootCmd.AddCommand(limitsCmd)
}
