package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

const (
	dashboardCacheKey       = "dashboard:overview"
	dashboardRecentActivity = 5
	dashboardProgressMonths = 6
)

// RecentActivityReader exposes the latest activity entries.
type RecentActivityReader interface {
	Recent(ctx context.Context, limit int) ([]dto.ActivityResponse, error)
}

// DashboardService aggregates grade book statistics.
type DashboardService interface {
	Overview(ctx context.Context) (dto.DashboardResponse, error)
}

type dashboardService struct {
	students repository.StudentRepository
	grades   repository.GradeRepository
	exports  repository.ExportRepository
	activity RecentActivityReader
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDashboardService constructs the dashboard service. Saved grades
// invalidate the cached overview.
func NewDashboardService(students repository.StudentRepository, grades repository.GradeRepository, exports repository.ExportRepository, activity RecentActivityReader, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		students: students,
		grades:   grades,
		exports:  exports,
		activity: activity,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "dashboard_service").Logger(),
		now:      time.Now,
	}
}

func (s *dashboardService) Overview(ctx context.Context) (dto.DashboardResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Msg("dashboard cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	response, err := s.compute(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *dashboardService) compute(ctx context.Context) (dto.DashboardResponse, error) {
	now := s.now()

	totalStudents, err := s.students.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	totalGrades, err := s.grades.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	totalExports, err := s.exports.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	grades, err := s.grades.List(ctx, repository.GradeFilter{})
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	recent := []dto.ActivityResponse{}
	if s.activity != nil {
		entries, err := s.activity.Recent(ctx, dashboardRecentActivity)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load recent activity")
		} else {
			recent = entries
		}
	}

	overall := &runningAverage{}
	subjects := map[uint]*dto.SubjectStat{}
	subjectAverages := map[uint]*runningAverage{}
	subjectStudents := map[uint]map[uint]struct{}{}
	buckets := make([]int, len(distributionLabels))

	firstMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(dashboardProgressMonths - 1), 0)
	monthly := make([]*runningAverage, dashboardProgressMonths)
	for i := range monthly {
		monthly[i] = &runningAverage{}
	}

	for _, grade := range grades {
		normalized, ok := grade.NormalizedScore(grade.Evaluation.MaxScore)
		if !ok {
			continue
		}
		overall.add(normalized, 1)
		buckets[distributionBucket(normalized)]++

		subject := grade.Evaluation.Subject
		if subjects[subject.ID] == nil {
			subjects[subject.ID] = &dto.SubjectStat{
				SubjectID: subject.ID,
				Name:      subject.Name,
				Code:      subject.Code,
				Color:     subject.Color,
			}
			subjectAverages[subject.ID] = &runningAverage{}
			subjectStudents[subject.ID] = map[uint]struct{}{}
		}
		subjectAverages[subject.ID].add(normalized, 1)
		subjectStudents[subject.ID][grade.StudentID] = struct{}{}

		date := grade.Evaluation.EvaluationDate.In(now.Location())
		index := (date.Year()-firstMonth.Year())*12 + int(date.Month()) - int(firstMonth.Month())
		if index >= 0 && index < dashboardProgressMonths {
			monthly[index].add(normalized, 1)
		}
	}

	subjectStats := make([]dto.SubjectStat, 0, len(subjects))
	for id, stat := range subjects {
		stat.Average = round2(subjectAverages[id].value())
		stat.GradedStudents = len(subjectStudents[id])
		subjectStats = append(subjectStats, *stat)
	}
	sort.Slice(subjectStats, func(i, j int) bool {
		return subjectStats[i].Name < subjectStats[j].Name
	})

	distribution := make([]dto.DistributionBucket, 0, len(distributionLabels))
	for i, label := range distributionLabels {
		distribution = append(distribution, dto.DistributionBucket{Label: label, Count: buckets[i]})
	}

	progress := make([]dto.MonthlyProgress, 0, dashboardProgressMonths)
	for i, month := range monthly {
		progress = append(progress, dto.MonthlyProgress{
			Month:   firstMonth.AddDate(0, i, 0).Format("2006-01"),
			Average: round2(month.value()),
			Grades:  month.count,
		})
	}

	return dto.DashboardResponse{
		TotalStudents:  totalStudents,
		TotalGrades:    totalGrades,
		AverageGrade:   round2(overall.value()),
		TotalExports:   totalExports,
		RecentActivity: recent,
		SubjectStats:   subjectStats,
		Distribution:   distribution,
		Progress:       progress,
		GeneratedAt:    now,
	}, nil
}
