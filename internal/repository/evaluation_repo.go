package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// EvaluationRepository persists evaluations.
type EvaluationRepository interface {
	ListBySubject(ctx context.Context, subjectID uint) ([]models.Evaluation, error)
	GetByID(ctx context.Context, id uint) (models.Evaluation, error)
	Create(ctx context.Context, evaluation *models.Evaluation) error
	Delete(ctx context.Context, id uint) (models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository constructs an evaluation repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) ListBySubject(ctx context.Context, subjectID uint) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("evaluation_date ASC, id ASC").
		Find(&evaluations).Error
	if err != nil {
		return nil, err
	}
	return evaluations, nil
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).First(&evaluation, id).Error; err != nil {
		return models.Evaluation{}, err
	}
	return evaluation, nil
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Omit("Subject").Create(evaluation).Error
}

// Delete removes the evaluation and returns the deleted row.
func (r *evaluationRepository) Delete(ctx context.Context, id uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&evaluation, id).Error; err != nil {
			return err
		}
		if err := tx.Where("evaluation_id = ?", id).Delete(&models.Grade{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Evaluation{}, id).Error
	})
	if err != nil {
		return models.Evaluation{}, err
	}
	return evaluation, nil
}
