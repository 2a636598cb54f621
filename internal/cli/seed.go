package cli

import (
	"context"
	"log"

	"converseiq-service/internal/config"
	"converseiq-service/internal/domain"
	"converseiq-service/internal/infra/postgres"
	redisinfra "converseiq-service/internal/infra/redis"
	"github.com/spf13/cobra"
)

// NewSeedCmd upserts the default question catalog.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the question catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openBunDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateDB(ctx, db); err != nil {
		return err
	}
	catalog := domain.DefaultCatalog()
	if err := postgres.SeedQuestions(ctx, db, catalog); err != nil {
		return err
	}
	log.Printf("seeded %d questions", len(catalog))

	if client := newRedisClient(cfg); client != nil {
		defer client.Close()
		// cached snapshots would otherwise hide the new catalog until they expire
		if err := redisinfra.NewQuestionCatalog(client, nil, 0).Invalidate(ctx); err != nil {
			log.Printf("warning: failed to invalidate cached catalog: %v", err)
		}
	}
	return nil
}
