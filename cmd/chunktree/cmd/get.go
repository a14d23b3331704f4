package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get the value for a key",
	Long: `Get the value stored under a key.

Example:
  chunktree get mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := []byte(args[0])

		database, err := databaseFromContext(cmd)
		if err != nil {
			return err
		}

		container, err := database.Get(key)
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}

		value, err := container.Extract()
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}

		cmd.Println(string(value))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
