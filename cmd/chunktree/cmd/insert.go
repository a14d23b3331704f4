package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/chunktree/pkg/db"
)

// insertCmd represents the insert command
var insertCmd = &cobra.Command{
	Use:   "insert <key> <value>",
	Short: "Insert a key-value pair",
	Long: `Insert a key-value pair into the tree.

Example:
  chunktree insert mykey myvalue`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := []byte(args[0])
		value := []byte(args[1])

		database, err := databaseFromContext(cmd)
		if err != nil {
			return err
		}

		if err := database.Put(key, db.NewChunkContainer(value)); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}

		cmd.Printf("inserted key %q\n", string(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(insertCmd)
}
