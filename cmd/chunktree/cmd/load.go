package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/chunktree/pkg/db"
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load <snapshot-path>",
	Short: "Load a tree from a saved snapshot and print its entries",
	Long: `Load reopens a tree from a snapshot written by save and prints
every key-value pair it holds, as a quick way to verify a snapshot round-
trips correctly.

Example:
  chunktree load ./data/snapshot.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotPath := args[0]
		dataDir, _ := cmd.Flags().GetString("data-dir")
		t, _ := cmd.Flags().GetInt("t")
		maxSegmentSize, _ := cmd.Flags().GetUint64("max-segment-size")

		database, err := db.OpenFromSnapshot(snapshotPath, db.Config{
			DataDir:        dataDir,
			T:              t,
			MaxSegmentSize: maxSegmentSize,
		})
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		defer database.Close()

		it := database.Scan()
		for it.Next() {
			cmd.Printf("%s\t%s\n", string(it.Key()), string(it.Value()))
		}
		return it.Err()
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
