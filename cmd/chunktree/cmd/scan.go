package cmd

import (
	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan all entries in key order",
	Long: `Scan walks the tree's leaf level in key order and prints every
key-value pair it holds.

Example:
  chunktree scan`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := databaseFromContext(cmd)
		if err != nil {
			return err
		}

		it := database.Scan()
		for it.Next() {
			cmd.Printf("%s\t%s\n", string(it.Key()), string(it.Value()))
		}
		return it.Err()
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
