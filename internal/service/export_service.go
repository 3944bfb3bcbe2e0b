package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/observability"
	"github.com/noah-isme/gradebook-api/internal/repository"
)

var (
	// ErrExportFormatUnsupported indicates the requested format cannot be produced.
	ErrExportFormatUnsupported = errors.New("export format not supported, use csv")
	// ErrExportInvalidRange indicates a custom range ending before it starts.
	ErrExportInvalidRange = errors.New("export start date must not be after end date")
)

const (
	exportTypeGrades     = "grades"
	exportTypeBulletins  = "bulletins"
	exportTypeStatistics = "statistics"
	exportFormatCSV      = "csv"
)

// ExportUploader stores generated files and returns a download URL.
type ExportUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// ExportService produces grade book exports.
type ExportService interface {
	Generate(ctx context.Context, req dto.ExportRequest, actor ActivityActor) (dto.ExportResponse, error)
}

type exportService struct {
	grades    repository.GradeRepository
	exports   repository.ExportRepository
	validator *validator.Validate
	uploader  ExportUploader
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewExportService constructs the export service. Without an uploader the
// file content is returned inline.
func NewExportService(grades repository.GradeRepository, exports repository.ExportRepository, validate *validator.Validate, uploader ExportUploader, activity ActivityRecorder, logger zerolog.Logger) ExportService {
	return &exportService{
		grades:    grades,
		exports:   exports,
		validator: validate,
		uploader:  uploader,
		activity:  activity,
		logger:    logger.With().Str("component", "export_service").Logger(),
		now:       time.Now,
	}
}

func (s *exportService) Generate(ctx context.Context, req dto.ExportRequest, actor ActivityActor) (dto.ExportResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gradebook-api/internal/service/export")
	ctx, span := tracer.Start(ctx, "exports.generate")
	span.SetAttributes(
		attribute.String("export.type", req.Type),
		attribute.String("export.format", req.Format),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ExportResponse{}, err
	}
	if req.Format != exportFormatCSV {
		return dto.ExportResponse{}, ErrExportFormatUnsupported
	}

	now := s.now()
	from, to, err := exportRange(req, now)
	if err != nil {
		return dto.ExportResponse{}, err
	}

	grades, err := s.grades.List(ctx, repository.GradeFilter{
		Classes:      req.Classes,
		SubjectNames: req.Subjects,
		From:         from,
		To:           to,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_query_failed")
		return dto.ExportResponse{}, err
	}

	var rows [][]string
	switch req.Type {
	case exportTypeGrades:
		rows = gradeRows(grades, req)
	case exportTypeBulletins:
		rows = bulletinRows(grades, req)
	default:
		rows = statisticsRows(grades)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return dto.ExportResponse{}, fmt.Errorf("write export: %w", err)
	}

	fileName := fmt.Sprintf("export_%s_%s.csv", req.Type, now.Format("2006-01-02"))
	response := dto.ExportResponse{
		Type:        req.Type,
		Format:      req.Format,
		FileName:    fileName,
		Rows:        len(rows) - 1,
		GeneratedAt: now,
	}

	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, fileName, bytes.NewReader(buf.Bytes()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload_failed")
			s.logger.Error().Err(err).Str("file", fileName).Msg("failed to upload export")
			return dto.ExportResponse{}, err
		}
		response.URL = url
	} else {
		response.Content = buf.String()
	}

	record := models.ExportRecord{
		Type:     req.Type,
		Format:   req.Format,
		FileName: fileName,
		URL:      response.URL,
		Rows:     response.Rows,
		ActorID:  actor.ID,
	}
	if err := s.exports.Create(ctx, &record); err != nil {
		s.logger.Error().Err(err).Msg("failed to record export")
		return dto.ExportResponse{}, err
	}
	response.ID = record.ID
	observability.ExportsGenerated().WithLabelValues(req.Type).Inc()

	if s.activity != nil {
		exportID := record.ID
		if _, err := s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "export.generated",
			EntityType: "export",
			EntityID:   &exportID,
			Metadata: map[string]interface{}{
				"type": req.Type,
				"rows": response.Rows,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record export activity")
		}
	}

	return response, nil
}

// exportRange resolves the named ranges: the current quarter, the current
// half year, the school year starting in September, or explicit dates.
func exportRange(req dto.ExportRequest, now time.Time) (*time.Time, *time.Time, error) {
	year, month := now.Year(), now.Month()
	var from time.Time

	switch req.DateRange {
	case "":
		return nil, nil, nil
	case "current":
		quarterStart := time.Month((int(month)-1)/3*3 + 1)
		from = time.Date(year, quarterStart, 1, 0, 0, 0, 0, now.Location())
	case "semester":
		start := time.January
		if month >= time.July {
			start = time.July
		}
		from = time.Date(year, start, 1, 0, 0, 0, 0, now.Location())
	case "year":
		if month < time.September {
			year--
		}
		from = time.Date(year, time.September, 1, 0, 0, 0, 0, now.Location())
	default:
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, nil, err
		}
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return nil, nil, err
		}
		if start.After(end) {
			return nil, nil, ErrExportInvalidRange
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
		return &start, &end, nil
	}

	to := now
	return &from, &to, nil
}

func gradeRows(grades []models.Grade, req dto.ExportRequest) [][]string {
	header := []string{"student_number", "last_name", "first_name", "class", "subject", "evaluation", "kind", "session", "date", "score", "max_score", "score_20"}
	if req.IncludeComments {
		header = append(header, "comment")
	}
	if req.IncludeStatistics {
		header = append(header, "class_average_20")
	}

	classAverages := map[string]*runningAverage{}
	if req.IncludeStatistics {
		for _, grade := range grades {
			if normalized, ok := grade.NormalizedScore(grade.Evaluation.MaxScore); ok {
				key := fmt.Sprintf("%d:%s", grade.EvaluationID, grade.Student.ClassName)
				if classAverages[key] == nil {
					classAverages[key] = &runningAverage{}
				}
				classAverages[key].add(normalized, 1)
			}
		}
	}

	rows := [][]string{header}
	for _, grade := range grades {
		score, normalized := "", ""
		if grade.Score != nil {
			score = formatDecimal(*grade.Score)
		}
		if value, ok := grade.NormalizedScore(grade.Evaluation.MaxScore); ok {
			normalized = formatDecimal(value)
		}

		row := []string{
			grade.Student.StudentNumber,
			grade.Student.LastName,
			grade.Student.FirstName,
			grade.Student.ClassName,
			grade.Evaluation.Subject.Name,
			grade.Evaluation.Name,
			string(grade.Evaluation.Kind),
			string(grade.Evaluation.SessionVariant),
			grade.Evaluation.EvaluationDate.Format("2006-01-02"),
			score,
			formatDecimal(grade.Evaluation.MaxScore),
			normalized,
		}
		if req.IncludeComments {
			row = append(row, grade.Comment)
		}
		if req.IncludeStatistics {
			average := ""
			if stat := classAverages[fmt.Sprintf("%d:%s", grade.EvaluationID, grade.Student.ClassName)]; stat != nil {
				average = formatDecimal(stat.value())
			}
			row = append(row, average)
		}
		rows = append(rows, row)
	}
	return rows
}

type runningAverage struct {
	sum    float64
	weight float64
	count  int
	min    float64
	max    float64
}

func (r *runningAverage) add(value, weight float64) {
	if r.count == 0 || value < r.min {
		r.min = value
	}
	if r.count == 0 || value > r.max {
		r.max = value
	}
	r.sum += value * weight
	r.weight += weight
	r.count++
}

func (r *runningAverage) value() float64 {
	if r.weight == 0 {
		return 0
	}
	return r.sum / r.weight
}

type bulletinLine struct {
	student  models.Student
	subjects map[uint]*runningAverage
	names    map[uint]models.Subject
	comments map[uint][]string
}

// bulletinRows computes per-subject averages weighted by evaluation coefficient
// and an overall average weighted by subject coefficient.
func bulletinRows(grades []models.Grade, req dto.ExportRequest) [][]string {
	header := []string{"student_number", "last_name", "first_name", "class", "subject", "coefficient", "average_20"}
	if req.IncludeComments {
		header = append(header, "comments")
	}
	if req.IncludeStatistics {
		header = append(header, "class_average_20")
	}

	lines := map[uint]*bulletinLine{}
	var order []uint
	classSubject := map[string]*runningAverage{}

	for _, grade := range grades {
		normalized, ok := grade.NormalizedScore(grade.Evaluation.MaxScore)
		line := lines[grade.StudentID]
		if line == nil {
			line = &bulletinLine{
				student:  grade.Student,
				subjects: map[uint]*runningAverage{},
				names:    map[uint]models.Subject{},
				comments: map[uint][]string{},
			}
			lines[grade.StudentID] = line
			order = append(order, grade.StudentID)
		}
		subject := grade.Evaluation.Subject
		line.names[subject.ID] = subject
		if comment := strings.TrimSpace(grade.Comment); comment != "" {
			line.comments[subject.ID] = append(line.comments[subject.ID], comment)
		}
		if !ok {
			continue
		}
		if line.subjects[subject.ID] == nil {
			line.subjects[subject.ID] = &runningAverage{}
		}
		line.subjects[subject.ID].add(normalized, positiveOr(grade.Evaluation.Coefficient, 1))
	}

	if req.IncludeStatistics {
		for _, id := range order {
			line := lines[id]
			for subjectID, average := range line.subjects {
				key := fmt.Sprintf("%d:%s", subjectID, line.student.ClassName)
				if classSubject[key] == nil {
					classSubject[key] = &runningAverage{}
				}
				classSubject[key].add(average.value(), 1)
			}
		}
	}

	rows := [][]string{header}
	for _, id := range order {
		line := lines[id]
		subjectIDs := make([]uint, 0, len(line.names))
		for subjectID := range line.names {
			subjectIDs = append(subjectIDs, subjectID)
		}
		sort.Slice(subjectIDs, func(i, j int) bool {
			return line.names[subjectIDs[i]].Name < line.names[subjectIDs[j]].Name
		})

		overall := &runningAverage{}
		for _, subjectID := range subjectIDs {
			subject := line.names[subjectID]
			average := ""
			if stat := line.subjects[subjectID]; stat != nil {
				average = formatDecimal(stat.value())
				overall.add(stat.value(), positiveOr(subject.Coefficient, 1))
			}
			row := []string{
				line.student.StudentNumber,
				line.student.LastName,
				line.student.FirstName,
				line.student.ClassName,
				subject.Name,
				formatDecimal(subject.Coefficient),
				average,
			}
			if req.IncludeComments {
				row = append(row, strings.Join(line.comments[subjectID], " | "))
			}
			if req.IncludeStatistics {
				classAverage := ""
				if stat := classSubject[fmt.Sprintf("%d:%s", subjectID, line.student.ClassName)]; stat != nil {
					classAverage = formatDecimal(stat.value())
				}
				row = append(row, classAverage)
			}
			rows = append(rows, row)
		}

		summary := []string{
			line.student.StudentNumber,
			line.student.LastName,
			line.student.FirstName,
			line.student.ClassName,
			"overall",
			"",
			"",
		}
		if overall.count > 0 {
			summary[6] = formatDecimal(overall.value())
		}
		if req.IncludeComments {
			summary = append(summary, "")
		}
		if req.IncludeStatistics {
			summary = append(summary, "")
		}
		rows = append(rows, summary)
	}
	return rows
}

// statisticsRows aggregates /20 grades per subject and class.
func statisticsRows(grades []models.Grade) [][]string {
	type statKey struct {
		subject string
		class   string
	}
	stats := map[statKey]*runningAverage{}
	buckets := map[statKey][]int{}
	var keys []statKey

	for _, grade := range grades {
		normalized, ok := grade.NormalizedScore(grade.Evaluation.MaxScore)
		if !ok {
			continue
		}
		key := statKey{subject: grade.Evaluation.Subject.Name, class: grade.Student.ClassName}
		if stats[key] == nil {
			stats[key] = &runningAverage{}
			buckets[key] = make([]int, len(distributionLabels))
			keys = append(keys, key)
		}
		stats[key].add(normalized, 1)
		buckets[key][distributionBucket(normalized)]++
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subject != keys[j].subject {
			return keys[i].subject < keys[j].subject
		}
		return keys[i].class < keys[j].class
	})

	header := []string{"subject", "class", "grades", "average_20", "min_20", "max_20"}
	for _, label := range distributionLabels {
		header = append(header, "range_"+label)
	}

	rows := [][]string{header}
	for _, key := range keys {
		stat := stats[key]
		row := []string{
			key.subject,
			key.class,
			strconv.Itoa(stat.count),
			formatDecimal(stat.value()),
			formatDecimal(stat.min),
			formatDecimal(stat.max),
		}
		for _, count := range buckets[key] {
			row = append(row, strconv.Itoa(count))
		}
		rows = append(rows, row)
	}
	return rows
}

var distributionLabels = []string{"0-5", "6-10", "11-15", "16-20"}

// distributionBucket places a /20 grade in one of the four ranges, rounding
// to the nearest point first.
func distributionBucket(score float64) int {
	rounded := math.Round(score)
	switch {
	case rounded <= 5:
		return 0
	case rounded <= 10:
		return 1
	case rounded <= 15:
		return 2
	default:
		return 3
	}
}

func positiveOr(value, fallback float64) float64 {
	if value > 0 {
		return value
	}
	return fallback
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func formatDecimal(value float64) string {
	return strconv.FormatFloat(round2(value), 'f', -1, 64)
}
