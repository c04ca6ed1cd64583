package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsdash/scheduler/internal/config"
	"github.com/opsdash/scheduler/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if err := pg.Migrate(cfg.Postgres.DSN); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("migrations applied")
		},
	}
}
