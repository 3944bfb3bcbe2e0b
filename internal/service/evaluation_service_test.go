package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

func TestEvaluationServiceCreateDerivesMakeupFlag(t *testing.T) {
	db := setupServiceDB(t)
	fixtures := seedCatalog(t, db)
	svc := NewEvaluationService(repository.NewEvaluationRepository(db), repository.NewSubjectRepository(db), testValidator(), nil, nil, time.Minute, testLogger())

	makeup, err := svc.Create(context.Background(), fixtures.physics.ID, dto.EvaluationCreateRequest{
		Name:           "Rattrapage TP",
		Kind:           models.EvaluationKindExam,
		SessionVariant: models.SessionVariantRattrapage,
		EvaluationDate: "2024-06-20",
	}, ActivityActor{})
	require.NoError(t, err)
	require.True(t, makeup.IsMakeup)
	require.Equal(t, 20.0, makeup.MaxScore)
	require.Equal(t, 1.0, makeup.Coefficient)

	normal, err := svc.Create(context.Background(), fixtures.physics.ID, dto.EvaluationCreateRequest{
		Name:           "Devoir maison",
		Kind:           models.EvaluationKindHomework,
		MaxScore:       ptrFloat(10),
		EvaluationDate: "2024-05-02",
	}, ActivityActor{})
	require.NoError(t, err)
	require.False(t, normal.IsMakeup)
	require.Equal(t, models.SessionVariantNormal, normal.SessionVariant)

	_, err = svc.Create(context.Background(), 999, dto.EvaluationCreateRequest{
		Name: "Orphan", Kind: models.EvaluationKindQuiz, EvaluationDate: "2024-05-02",
	}, ActivityActor{})
	require.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = svc.Create(context.Background(), fixtures.physics.ID, dto.EvaluationCreateRequest{
		Name: "Bad date", Kind: models.EvaluationKindQuiz, EvaluationDate: "02/05/2024",
	}, ActivityActor{})
	require.Error(t, err)
}

func TestEvaluationServiceListUsesCacheUntilInvalidated(t *testing.T) {
	db := setupServiceDB(t)
	fixtures := seedCatalog(t, db)
	mini, cache := setupRedis(t)
	activityRepo := &memoryActivityRepo{}
	svc := NewEvaluationService(repository.NewEvaluationRepository(db), repository.NewSubjectRepository(db), testValidator(), NewActivityService(activityRepo, testLogger()), cache, time.Minute, testLogger())
	ctx := context.Background()

	listed, err := svc.List(ctx, fixtures.math.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.True(t, mini.Exists(evaluationsCacheKey(fixtures.math.ID)))

	// a direct write bypasses the service, so the cached list is served
	require.NoError(t, db.Omit("Subject").Create(&models.Evaluation{
		SubjectID: fixtures.math.ID, Name: "Hidden", Kind: models.EvaluationKindQuiz, SessionVariant: models.SessionVariantNormal, MaxScore: 20, Coefficient: 1,
	}).Error)
	listed, err = svc.List(ctx, fixtures.math.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	require.NoError(t, svc.Delete(ctx, fixtures.quiz.ID, ActivityActor{ID: 2, Role: "teacher"}))
	require.False(t, mini.Exists(evaluationsCacheKey(fixtures.math.ID)))

	listed, err = svc.List(ctx, fixtures.math.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, []string{"evaluation.deleted"}, activityRepo.actions())

	require.ErrorIs(t, svc.Delete(ctx, fixtures.quiz.ID, ActivityActor{}), ErrEvaluationNotFound)
}
