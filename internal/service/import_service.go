package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
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
	// ErrImportNotCSV indicates the upload is not a CSV text file.
	ErrImportNotCSV = errors.New("only csv files are accepted")
	// ErrImportTooLarge indicates the upload exceeds the configured limit.
	ErrImportTooLarge = errors.New("import file too large")
	// ErrImportEmpty indicates the file lacks a header or data rows.
	ErrImportEmpty = errors.New("file must contain a header row and at least one data row")
	// ErrImportMissingColumns indicates required headers are absent.
	ErrImportMissingColumns = errors.New("missing columns")
)

const (
	columnStudentNumber = "numero_etudiant"
	columnFirstName     = "prenom"
	columnLastName      = "nom"
	columnEmail         = "email"
	columnClass         = "classe"
	columnBirthDate     = "date_naissance"
)

var requiredImportColumns = []string{columnStudentNumber, columnFirstName, columnLastName}

// StudentImportService loads students from CSV files.
type StudentImportService interface {
	Import(ctx context.Context, fileName string, file io.Reader, dryRun bool, actor ActivityActor) (dto.StudentImportResponse, error)
}

type studentImportService struct {
	students repository.StudentRepository
	activity ActivityRecorder
	maxBytes int64
	logger   zerolog.Logger
}

// NewStudentImportService constructs the CSV import service.
func NewStudentImportService(students repository.StudentRepository, activity ActivityRecorder, maxBytes int64, logger zerolog.Logger) StudentImportService {
	return &studentImportService{
		students: students,
		activity: activity,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "student_import_service").Logger(),
	}
}

func (s *studentImportService) Import(ctx context.Context, fileName string, file io.Reader, dryRun bool, actor ActivityActor) (dto.StudentImportResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gradebook-api/internal/service/import")
	ctx, span := tracer.Start(ctx, "students.import")
	span.SetAttributes(
		attribute.String("import.file_name", fileName),
		attribute.Bool("import.dry_run", dryRun),
	)
	defer span.End()

	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return dto.StudentImportResponse{}, ErrImportNotCSV
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		span.RecordError(err)
		return dto.StudentImportResponse{}, err
	}
	if int64(len(data)) > s.maxBytes {
		return dto.StudentImportResponse{}, ErrImportTooLarge
	}
	if !isTextContent(data) {
		return dto.StudentImportResponse{}, ErrImportNotCSV
	}

	students, rowErrors, err := parseStudentCSV(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_file")
		return dto.StudentImportResponse{}, err
	}

	response := dto.StudentImportResponse{
		DryRun:   dryRun,
		Total:    len(students) + len(rowErrors),
		Students: make([]dto.StudentResponse, 0, len(students)),
		Errors:   rowErrors,
	}
	for _, student := range students {
		response.Students = append(response.Students, dto.NewStudentResponse(student))
	}
	observability.StudentsImported().WithLabelValues("rejected").Add(float64(len(rowErrors)))

	if dryRun || len(students) == 0 {
		return response, nil
	}

	if err := s.students.UpsertByNumber(ctx, students); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert_failed")
		s.logger.Error().Err(err).Int("rows", len(students)).Msg("failed to import students")
		return dto.StudentImportResponse{}, err
	}
	response.Imported = len(students)
	observability.StudentsImported().WithLabelValues("imported").Add(float64(len(students)))

	s.logger.Info().Int("imported", response.Imported).Int("rejected", len(rowErrors)).Msg("students imported")
	if s.activity != nil {
		if _, err := s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "students.imported",
			EntityType: "student",
			Metadata: map[string]interface{}{
				"file":     fileName,
				"imported": response.Imported,
				"rejected": len(rowErrors),
			},
		}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record import activity")
		}
	}

	return response, nil
}

func isTextContent(data []byte) bool {
	for mime := mimetype.Detect(data); mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}

// parseStudentCSV validates the header and converts every data row, collecting
// per-row problems instead of failing the whole file.
func parseStudentCSV(data []byte) ([]models.Student, []dto.StudentImportRowError, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrImportEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrImportNotCSV, err)
	}

	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	var missing []string
	for _, required := range requiredImportColumns {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrImportMissingColumns, strings.Join(missing, ", "))
	}

	value := func(record []string, column string) string {
		idx, ok := columns[column]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		students []models.Student
		problems []dto.StudentImportRowError
		seen     = map[string]int{}
		rows     int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line, _ := reader.FieldPos(0)
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.StartLine
			}
			problems = append(problems, dto.StudentImportRowError{Line: line, Message: fmt.Sprintf("line %d: malformed row", line)})
			rows++
			continue
		}
		rows++

		if len(record) != len(header) {
			problems = append(problems, dto.StudentImportRowError{Line: line, Message: fmt.Sprintf("line %d: wrong number of columns", line)})
			continue
		}

		student := models.Student{
			StudentNumber: value(record, columnStudentNumber),
			FirstName:     value(record, columnFirstName),
			LastName:      value(record, columnLastName),
			Email:         value(record, columnEmail),
			ClassName:     value(record, columnClass),
		}
		if student.StudentNumber == "" || student.FirstName == "" || student.LastName == "" {
			problems = append(problems, dto.StudentImportRowError{Line: line, Message: fmt.Sprintf("line %d: missing required fields", line)})
			continue
		}
		if raw := value(record, columnBirthDate); raw != "" {
			birthDate, err := time.Parse("2006-01-02", raw)
			if err != nil {
				problems = append(problems, dto.StudentImportRowError{Line: line, Message: fmt.Sprintf("line %d: invalid birth date, expected YYYY-MM-DD", line)})
				continue
			}
			student.BirthDate = &birthDate
		}
		if first, duplicate := seen[student.StudentNumber]; duplicate {
			problems = append(problems, dto.StudentImportRowError{Line: line, Message: fmt.Sprintf("line %d: duplicate student number (first seen on line %d)", line, first)})
			continue
		}
		seen[student.StudentNumber] = line

		students = append(students, student)
	}

	if rows == 0 {
		return nil, nil, ErrImportEmpty
	}

	return students, problems, nil
}
