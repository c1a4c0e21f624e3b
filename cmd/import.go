package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/findbus/config"
)

var importCmd = &cobra.Command{
	Use:   "import <feed>",
	Short: "Loads datasets into SQLite or Postgres",
	Long:  "Loads datasets into SQLite or Postgres, for later use with --feed",
	Args:  cobra.ExactArgs(1),
	RunE:  importFeed,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importFeed(cmd *cobra.Command, args []string) error {
	cfg.Feed = args[0]
	if cfg.DBDriver == config.DriverMemory {
		return fmt.Errorf("importing requires --db sqlite or --db postgres")
	}

	loader, err := newLoader()
	if err != nil {
		return err
	}

	err = loader.Import(cmd.Context(), sources())
	if err != nil {
		return err
	}

	reader, err := loader.Storage.GetReader(cfg.Feed)
	if err != nil {
		return fmt.Errorf("reading back feed: %w", err)
	}
	index, err := loader.LoadFromStorage(reader)
	if err != nil {
		return err
	}

	counts := index.Counts()
	log.Info().
		Str("feed", cfg.Feed).
		Str("db", cfg.DBDriver).
		Int("stops", counts.Stops).
		Int("routes", counts.Routes).
		Int("trips", counts.Trips).
		Int("stop_times", counts.StopTimes).
		Msg("Imported feed")

	return nil
}
