package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"enterprise-kb/internal/bootstrap"
)

var ensureCollectionCmd = &cobra.Command{
	Use:   "ensure-collection",
	Short: "Create the vector collection and its payload indexes if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := bootstrap.NewVectorIndex(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer index.Close()

		if err := index.EnsureCollection(cmd.Context()); err != nil {
			return err
		}
		count, err := index.Count(cmd.Context(), nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "collection %q ready (%s backend, dimension %d, %d chunks)\n",
			cfg.Vector.Collection, cfg.Vector.Backend, cfg.Vector.Dimension, count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ensureCollectionCmd)
}
