package db

import (
	"fmt"

	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Negotiation{},
		&models.Contribution{},
		&models.Signing{},
		&models.Peer{},
		&models.Owner{},
		&models.PeerConsensusLog{},
		&models.Endpoint{},
		&models.EndpointLink{},
		&models.EndpointConsensusLog{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
