// Command flexctl runs the background jobs of the payments API: migrations, scenario
// recalculation, payout batches, transfer sync, billing consolidation and the
// notification worker.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"flexile-backend/internal/app"
	"flexile-backend/internal/config"
	"flexile-backend/internal/infrastructure/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("database is not configured")

type cli struct {
	container *app.Container
	owned     bool
	out       io.Writer
}

func main() {
	c := &cli{out: os.Stdout}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "flexctl",
		Short:         "Flexile payments jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.container != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.container, err = app.New(cfg)
			c.owned = err == nil
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.owned {
				c.container.Close()
			}
		},
	}
	root.SetOut(c.out)

	root.AddCommand(migrateCmd(c))
	root.AddCommand(scenarioCmd(c))
	root.AddCommand(payoutsCmd(c))
	root.AddCommand(billingCmd(c))
	root.AddCommand(notificationsCmd(c))
	return root
}

func (c *cli) requireDB() error {
	if c.container.DB == nil {
		return errNoDatabase
	}
	return nil
}

// print writes v as indented JSON.
func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			if err := database.AutoMigrate(c.container.DB.WithContext(cmd.Context())); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
