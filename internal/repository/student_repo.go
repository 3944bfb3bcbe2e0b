package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// StudentFilter narrows roster queries.
type StudentFilter struct {
	Search string
	Class  string
}

// StudentRepository provides access to student records.
type StudentRepository interface {
	List(ctx context.Context, filter StudentFilter) ([]models.Student, error)
	GetByID(ctx context.Context, id uint) (models.Student, error)
	UpsertByNumber(ctx context.Context, students []models.Student) error
	Count(ctx context.Context) (int64, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, error) {
	query := r.db.WithContext(ctx).Model(&models.Student{})

	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR student_number LIKE ? OR LOWER(class_name) LIKE ?",
			like, like, "%"+search+"%", like)
	}
	if filter.Class != "" {
		query = query.Where("class_name = ?", filter.Class)
	}

	var students []models.Student
	if err := query.Order("last_name ASC, first_name ASC, id ASC").Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

// UpsertByNumber inserts students, refreshing existing rows sharing a roll number.
func (r *studentRepository) UpsertByNumber(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "class_name", "email", "birth_date", "updated_at"}),
		}).Create(&students).Error
	})
}

func (r *studentRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Student{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
