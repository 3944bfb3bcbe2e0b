package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// ExportRepository keeps the history of generated exports.
type ExportRepository interface {
	Create(ctx context.Context, record *models.ExportRecord) error
	Count(ctx context.Context) (int64, error)
}

type exportRepository struct {
	db *gorm.DB
}

// NewExportRepository constructs an export repository.
func NewExportRepository(db *gorm.DB) ExportRepository {
	return &exportRepository{db: db}
}

func (r *exportRepository) Create(ctx context.Context, record *models.ExportRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *exportRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ExportRecord{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
