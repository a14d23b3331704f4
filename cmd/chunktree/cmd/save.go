package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// saveCmd represents the save command
var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Save a snapshot of the tree",
	Long: `Save persists the current tree structure to the given path. The
underlying chunk data is left where it already lives; only the tree
shape and chunk handles are written.

Example:
  chunktree save ./data/snapshot.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		database, err := databaseFromContext(cmd)
		if err != nil {
			return err
		}

		if err := database.Save(path); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}

		cmd.Printf("saved snapshot to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
}
