package consultpro

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/config"
	"github.com/consultpro/agents/pkg/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo consultancy data into an empty database",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	dsn := config.Current().Store.DSN

	db, err := store.New(dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = db.Close() }()

	seeded, err := db.Seed(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("seeding store: %w", err)
	}
	if !seeded {
		fmt.Printf("%s already has data, nothing to do\n", dsn)
		return nil
	}
	fmt.Printf("seeded demo data into %s\n", dsn)
	return nil
}
