package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// GradeFilter narrows grade queries used by exports and statistics.
type GradeFilter struct {
	EvaluationID uint
	SubjectNames []string
	Classes      []string
	From         *time.Time
	To           *time.Time
}

// GradeRepository persists grades.
type GradeRepository interface {
	UpsertBatch(ctx context.Context, grades []models.Grade) error
	ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Grade, error)
	List(ctx context.Context, filter GradeFilter) ([]models.Grade, error)
	Count(ctx context.Context) (int64, error)
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

// UpsertBatch writes all grades in one transaction, replacing existing
// (student, evaluation) rows.
func (r *gradeRepository) UpsertBatch(ctx context.Context, grades []models.Grade) error {
	if len(grades) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Student", "Evaluation").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "evaluation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "graded_by", "graded_at", "updated_at"}),
		}).Create(&grades).Error
	})
}

func (r *gradeRepository) ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Grade, error) {
	return r.List(ctx, GradeFilter{EvaluationID: evaluationID})
}

func (r *gradeRepository) List(ctx context.Context, filter GradeFilter) ([]models.Grade, error) {
	query := r.db.WithContext(ctx).Model(&models.Grade{}).
		Select("grades.*").
		Joins("JOIN evaluations ON evaluations.id = grades.evaluation_id").
		Joins("JOIN students ON students.id = grades.student_id").
		Joins("JOIN subjects ON subjects.id = evaluations.subject_id")

	if filter.EvaluationID != 0 {
		query = query.Where("grades.evaluation_id = ?", filter.EvaluationID)
	}
	if len(filter.SubjectNames) > 0 {
		query = query.Where("subjects.name IN ?", filter.SubjectNames)
	}
	if len(filter.Classes) > 0 {
		query = query.Where("students.class_name IN ?", filter.Classes)
	}
	if filter.From != nil {
		query = query.Where("evaluations.evaluation_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("evaluations.evaluation_date <= ?", *filter.To)
	}

	var grades []models.Grade
	err := query.
		Preload("Student").
		Preload("Evaluation").
		Preload("Evaluation.Subject").
		Order("students.last_name ASC, students.first_name ASC, grades.id ASC").
		Find(&grades).Error
	if err != nil {
		return nil, err
	}
	return grades, nil
}

func (r *gradeRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Grade{}).Where("score IS NOT NULL").Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
