package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// Migrate creates or updates the grade book schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Student{},
		&models.Professor{},
		&models.Subject{},
		&models.Evaluation{},
		&models.Grade{},
		&models.ExportRecord{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
