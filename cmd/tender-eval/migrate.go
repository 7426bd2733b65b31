package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nurpe/tender-eval/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the tender evaluation schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(false)
		if err != nil {
			return err
		}

		database, err := db.New(cfg, log)
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		if sqlDB, err := database.DB(); err == nil {
			defer sqlDB.Close()
		}

		log.Info().Msg("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
