package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/config"
	"proctored-quiz-engine/internal/infra/postgres"
)

// NewMigrateCmd applies database migrations and optionally loads the demo catalog.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seedDemo bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seedDemo)
		},
	}
	cmd.Flags().BoolVar(&seedDemo, "seed-demo", false, "load the demo catalog after migrating")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seedDemo bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := postgres.Migrate(ctx, cfg.Postgres.URL, log); err != nil {
		return err
	}
	if !seedDemo {
		return nil
	}
	return seedCatalog(ctx, cfg.Postgres.URL, log)
}

func seedCatalog(ctx context.Context, dsn string, log logrus.FieldLogger) error {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	seed := catalog.DemoSeed()
	if err := postgres.NewCatalog(pool).Seed(ctx, seed); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"subjects":  len(seed.Subjects),
		"questions": len(seed.Questions),
	}).Info("demo catalog loaded")
	return nil
}
