package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var revokeSuperuser bool

var promoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Grant or revoke superuser on an account",
	Long: `Superusers see every document regardless of permission level and may
delete or reindex any of them. Registration never grants the flag.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.Services.Auth.SetSuperuser(cmd.Context(), args[0], !revokeSuperuser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d) superuser=%t\n", user.Username, user.ID, user.IsSuperuser)
		return nil
	},
}

func init() {
	promoteCmd.Flags().BoolVar(&revokeSuperuser, "revoke", false, "remove superuser instead of granting it")
	rootCmd.AddCommand(promoteCmd)
}
