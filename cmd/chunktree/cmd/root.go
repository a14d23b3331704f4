/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/chunktree/pkg/db"
)

type contextKey string

const storeContextKey contextKey = "database"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chunktree",
	Short: "chunktree - a concurrent B+ tree key-value store",
	Long: `chunktree is an embeddable, latch-crabbing B+ tree key-value store
backed by an append-only chunk log, intended as a pluggable backing store
for content-defined-chunking filesystems.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// load manages its own database lifecycle (it opens from a
		// snapshot instead of fresh), so it skips the default open here.
		if cmd.Name() == "load" {
			return nil
		}

		dataDir, _ := cmd.Flags().GetString("data-dir")
		t, _ := cmd.Flags().GetInt("t")
		maxSegmentSize, _ := cmd.Flags().GetUint64("max-segment-size")

		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		database, err := db.Open(db.Config{
			DataDir:        dataDir,
			T:              t,
			MaxSegmentSize: maxSegmentSize,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		cmd.SetContext(context.WithValue(cmd.Context(), storeContextKey, database))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if database, ok := cmd.Context().Value(storeContextKey).(*db.Database); ok {
			return database.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func databaseFromContext(cmd *cobra.Command) (*db.Database, error) {
	database, ok := cmd.Context().Value(storeContextKey).(*db.Database)
	if !ok {
		return nil, fmt.Errorf("database not found in command context")
	}
	return database, nil
}

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Data directory for the store")
	rootCmd.PersistentFlags().Int("t", 64, "Minimum branching degree of the tree")
	rootCmd.PersistentFlags().Uint64("max-segment-size", 64*1024*1024, "Maximum chunk segment file size before rotation")
}
