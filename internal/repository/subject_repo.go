package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// SubjectRepository persists subjects together with their professor.
type SubjectRepository interface {
	List(ctx context.Context) ([]models.Subject, error)
	GetByID(ctx context.Context, id uint) (models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Subject, error)
	Delete(ctx context.Context, id uint) error
	CodeExists(ctx context.Context, code string, excludeID uint) (bool, error)
}

type subjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository constructs a subject repository.
func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

func (r *subjectRepository) List(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	if err := r.db.WithContext(ctx).Preload("Professor").Order("name ASC").Find(&subjects).Error; err != nil {
		return nil, err
	}
	return subjects, nil
}

func (r *subjectRepository) GetByID(ctx context.Context, id uint) (models.Subject, error) {
	var subject models.Subject
	if err := r.db.WithContext(ctx).Preload("Professor").First(&subject, id).Error; err != nil {
		return models.Subject{}, err
	}
	return subject, nil
}

func (r *subjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	return r.db.WithContext(ctx).Create(subject).Error
}

func (r *subjectRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Subject, error) {
	result := r.db.WithContext(ctx).Model(&models.Subject{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Subject{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Subject{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *subjectRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Subject{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CodeExists reports whether another subject already uses code.
func (r *subjectRepository) CodeExists(ctx context.Context, code string, excludeID uint) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Subject{}).Where("UPPER(code) = UPPER(?)", code)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// ProfessorRepository persists professors.
type ProfessorRepository interface {
	List(ctx context.Context) ([]models.Professor, error)
	GetByID(ctx context.Context, id uint) (models.Professor, error)
	Create(ctx context.Context, professor *models.Professor) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

type professorRepository struct {
	db *gorm.DB
}

// NewProfessorRepository constructs a professor repository.
func NewProfessorRepository(db *gorm.DB) ProfessorRepository {
	return &professorRepository{db: db}
}

func (r *professorRepository) List(ctx context.Context) ([]models.Professor, error) {
	var professors []models.Professor
	if err := r.db.WithContext(ctx).Order("last_name ASC, first_name ASC").Find(&professors).Error; err != nil {
		return nil, err
	}
	return professors, nil
}

func (r *professorRepository) GetByID(ctx context.Context, id uint) (models.Professor, error) {
	var professor models.Professor
	if err := r.db.WithContext(ctx).First(&professor, id).Error; err != nil {
		return models.Professor{}, err
	}
	return professor, nil
}

func (r *professorRepository) Create(ctx context.Context, professor *models.Professor) error {
	return r.db.WithContext(ctx).Create(professor).Error
}

func (r *professorRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Professor{}).Where("LOWER(email) = LOWER(?)", email).Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}
