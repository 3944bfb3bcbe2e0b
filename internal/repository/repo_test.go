package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Professor{},
		&models.Subject{},
		&models.Evaluation{},
		&models.Grade{},
		&models.ExportRecord{},
		&models.ActivityLog{},
	))
	return db
}

func scorePtr(v float64) *float64 {
	return &v
}

func seedGradebook(t *testing.T, db *gorm.DB) (models.Subject, models.Evaluation, []models.Student) {
	t.Helper()

	students := []models.Student{
		{StudentNumber: "2024001", FirstName: "Marie", LastName: "Dupont", ClassName: "3A"},
		{StudentNumber: "2024002", FirstName: "Pierre", LastName: "Martin", ClassName: "3A"},
		{StudentNumber: "2024004", FirstName: "Lucas", LastName: "Petit", ClassName: "3B"},
	}
	require.NoError(t, db.Create(&students).Error)

	subject := models.Subject{Name: "Mathématiques", Code: "MATH", Coefficient: 4}
	require.NoError(t, db.Create(&subject).Error)

	evaluation := models.Evaluation{
		SubjectID:      subject.ID,
		Name:           "Contrôle 1",
		Kind:           models.EvaluationKindExam,
		SessionVariant: models.SessionVariantNormal,
		MaxScore:       20,
		Coefficient:    1,
		EvaluationDate: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Omit("Subject").Create(&evaluation).Error)

	return subject, evaluation, students
}

func TestStudentRepositoryListSearchesNamesAndNumbers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStudentRepository(db)
	_, _, _ = seedGradebook(t, db)

	students, err := repo.List(context.Background(), StudentFilter{Search: "dup"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, "Marie Dupont", students[0].FullName())

	students, err = repo.List(context.Background(), StudentFilter{Search: "2024004"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, "Petit", students[0].LastName)

	students, err = repo.List(context.Background(), StudentFilter{Class: "3A"})
	require.NoError(t, err)
	require.Len(t, students, 2)
	require.Equal(t, "Dupont", students[0].LastName, "expected alphabetical order by last name")
}

func TestStudentRepositoryUpsertByNumberRefreshesExistingRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStudentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByNumber(ctx, []models.Student{
		{StudentNumber: "2024001", FirstName: "Marie", LastName: "Dupont", ClassName: "3A"},
	}))
	require.NoError(t, repo.UpsertByNumber(ctx, []models.Student{
		{StudentNumber: "2024001", FirstName: "Marie", LastName: "Dupont", ClassName: "3B", Email: "marie@example.com"},
		{StudentNumber: "2024002", FirstName: "Pierre", LastName: "Martin", ClassName: "3A"},
	}))

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)

	students, err := repo.List(ctx, StudentFilter{Search: "2024001"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, "3B", students[0].ClassName)
	require.Equal(t, "marie@example.com", students[0].Email)
}

func TestSubjectRepositoryUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	subjects := NewSubjectRepository(db)
	professors := NewProfessorRepository(db)
	ctx := context.Background()

	professor := models.Professor{FirstName: "Jean", LastName: "Dubois", Email: "jean.dubois@example.com"}
	require.NoError(t, professors.Create(ctx, &professor))

	subject := models.Subject{Name: "Physique", Code: "PHY", Coefficient: 3, ProfessorID: &professor.ID}
	require.NoError(t, subjects.Create(ctx, &subject))

	loaded, err := subjects.GetByID(ctx, subject.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Professor)
	require.Equal(t, "Dubois", loaded.Professor.LastName)

	taken, err := subjects.CodeExists(ctx, "phy", 0)
	require.NoError(t, err)
	require.True(t, taken)
	taken, err = subjects.CodeExists(ctx, "PHY", subject.ID)
	require.NoError(t, err)
	require.False(t, taken)

	exists, err := professors.EmailExists(ctx, "Jean.Dubois@example.com")
	require.NoError(t, err)
	require.True(t, exists)

	updated, err := subjects.Update(ctx, subject.ID, map[string]interface{}{"coefficient": 2.5})
	require.NoError(t, err)
	require.Equal(t, 2.5, updated.Coefficient)

	_, err = subjects.Update(ctx, 999, map[string]interface{}{"coefficient": 1})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, subjects.Delete(ctx, subject.ID))
	require.ErrorIs(t, subjects.Delete(ctx, subject.ID), gorm.ErrRecordNotFound)
}

func TestEvaluationRepositoryDeleteRemovesGrades(t *testing.T) {
	db := setupTestDB(t)
	evaluations := NewEvaluationRepository(db)
	grades := NewGradeRepository(db)
	ctx := context.Background()

	subject, evaluation, students := seedGradebook(t, db)
	require.NoError(t, grades.UpsertBatch(ctx, []models.Grade{
		{StudentID: students[0].ID, EvaluationID: evaluation.ID, Score: scorePtr(14), GradedAt: time.Now()},
	}))

	listed, err := evaluations.ListBySubject(ctx, subject.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	deleted, err := evaluations.Delete(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, "Contrôle 1", deleted.Name)

	remaining, err := grades.ListByEvaluation(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	_, err = evaluations.Delete(ctx, evaluation.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGradeRepositoryUpsertBatchReplacesExistingGrades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRepository(db)
	ctx := context.Background()

	_, evaluation, students := seedGradebook(t, db)

	require.NoError(t, repo.UpsertBatch(ctx, []models.Grade{
		{StudentID: students[0].ID, EvaluationID: evaluation.ID, Score: scorePtr(12), Comment: "Bien", GradedAt: time.Now()},
		{StudentID: students[1].ID, EvaluationID: evaluation.ID, Score: scorePtr(9), GradedAt: time.Now()},
	}))
	require.NoError(t, repo.UpsertBatch(ctx, []models.Grade{
		{StudentID: students[0].ID, EvaluationID: evaluation.ID, Score: scorePtr(15.5), Comment: "Très bien", GradedAt: time.Now()},
		{StudentID: students[1].ID, EvaluationID: evaluation.ID, Score: nil, GradedAt: time.Now()},
	}))

	stored, err := repo.ListByEvaluation(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	byStudent := map[uint]models.Grade{}
	for _, grade := range stored {
		byStudent[grade.StudentID] = grade
	}
	require.NotNil(t, byStudent[students[0].ID].Score)
	require.Equal(t, 15.5, *byStudent[students[0].ID].Score)
	require.Equal(t, "Très bien", byStudent[students[0].ID].Comment)
	require.Nil(t, byStudent[students[1].ID].Score)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "cleared scores are not counted")
}

func TestGradeRepositoryListFiltersByClassSubjectAndDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRepository(db)
	ctx := context.Background()

	_, evaluation, students := seedGradebook(t, db)
	require.NoError(t, repo.UpsertBatch(ctx, []models.Grade{
		{StudentID: students[0].ID, EvaluationID: evaluation.ID, Score: scorePtr(12), GradedAt: time.Now()},
		{StudentID: students[2].ID, EvaluationID: evaluation.ID, Score: scorePtr(17), GradedAt: time.Now()},
	}))

	grades, err := repo.List(ctx, GradeFilter{Classes: []string{"3B"}})
	require.NoError(t, err)
	require.Len(t, grades, 1)
	require.Equal(t, "Petit", grades[0].Student.LastName)
	require.Equal(t, "Mathématiques", grades[0].Evaluation.Subject.Name)

	grades, err = repo.List(ctx, GradeFilter{SubjectNames: []string{"Physique"}})
	require.NoError(t, err)
	require.Empty(t, grades)

	after := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	grades, err = repo.List(ctx, GradeFilter{From: &after})
	require.NoError(t, err)
	require.Empty(t, grades)

	before := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	grades, err = repo.List(ctx, GradeFilter{To: &before})
	require.NoError(t, err)
	require.Len(t, grades, 2)
}

func TestActivityLogRepositoryFiltersByEntity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	evaluationID := uint(11)
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "teacher", Action: "grades.saved", EntityType: "evaluation", EntityID: &evaluationID}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "teacher", Action: "students.imported", EntityType: "student"}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{EntityID: &evaluationID, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "grades.saved", entries[0].Action)

	entries, total, err = repo.List(ctx, ActivityLogFilter{PageSize: 1, Page: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 1)
}
