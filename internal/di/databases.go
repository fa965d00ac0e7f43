package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/store"
)

// InitializeDatabase opens the allocator database, applies the schema and
// creates the store.
func InitializeDatabase(container *Container, cfg *config.Config, log zerolog.Logger) error {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Driver:  database.DriverModernc,
		Profile: database.ProfileStandard,
		Name:    "allocator",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	container.DB = db
	container.Store = store.New(db.Conn(), log)

	log.Info().Str("path", cfg.DatabasePath).Msg("Database initialized")
	return nil
}
