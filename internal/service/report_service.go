package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/export"
)

type reportMaterialLister interface {
	ListActiveByWeek(ctx context.Context, weekID int64, includeTeacherOnly bool) ([]models.MaterialRecord, error)
}

type reportSubmissionLister interface {
	ListStudentsByWeek(ctx context.Context, weekNo int) ([]models.StudentSubmissionSummary, error)
}

// ReportFile is a rendered export ready for download.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService renders owner-facing CSV and PDF exports of the week
// catalog and submission activity.
type ReportService struct {
	materials   reportMaterialLister
	submissions reportSubmissionLister
	weeks       weekResolver
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
	enabled     bool
}

// NewReportService constructs the service.
func NewReportService(materials reportMaterialLister, submissions reportSubmissionLister, weeks weekResolver, logger *zap.Logger, enabled bool) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		materials:   materials,
		submissions: submissions,
		weeks:       weeks,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
		enabled:     enabled,
	}
}

// MaterialsReport exports the week's active materials.
func (s *ReportService) MaterialsReport(ctx context.Context, actor *models.JWTClaims, weekNo int, format string) (*ReportFile, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return nil, err
	}
	records, err := s.materials.ListActiveByWeek(ctx, week.ID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect materials")
	}

	dataset := export.Dataset{
		Headers: []string{"Type", "Version", "Visibility", "Uploaded By", "Size"},
	}
	for _, rec := range records {
		size := ""
		if rec.SizeBytes != nil {
			size = strconv.FormatInt(*rec.SizeBytes, 10)
		}
		dataset.Append(string(rec.Type), strconv.Itoa(rec.Version), string(rec.Visibility), rec.UploadedBy, size)
	}
	title := fmt.Sprintf("Week %d materials", weekNo)
	return s.render(dataset, title, fmt.Sprintf("week%d_materials", weekNo), format)
}

// SubmissionsReport exports which students handed in files for the week.
func (s *ReportService) SubmissionsReport(ctx context.Context, actor *models.JWTClaims, weekNo int, format string) (*ReportFile, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if _, err := s.resolveWeek(ctx, weekNo); err != nil {
		return nil, err
	}
	students, err := s.submissions.ListStudentsByWeek(ctx, weekNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect submissions")
	}

	dataset := export.Dataset{Headers: []string{"Student", "Files"}}
	for _, row := range students {
		dataset.Append(row.StudentID, strconv.Itoa(row.FilesCount))
	}
	title := fmt.Sprintf("Week %d submissions", weekNo)
	return s.render(dataset, title, fmt.Sprintf("week%d_submissions", weekNo), format)
}

func (s *ReportService) render(dataset export.Dataset, title, baseName, format string) (*ReportFile, error) {
	stamp := time.Now().UTC().Format("20060102")
	switch strings.ToLower(format) {
	case "", "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ReportFile{
			Filename:    fmt.Sprintf("%s_%s.csv", baseName, stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case "pdf":
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ReportFile{
			Filename:    fmt.Sprintf("%s_%s.pdf", baseName, stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ReportService) authorize(actor *models.JWTClaims) error {
	if !s.enabled {
		return appErrors.Clone(appErrors.ErrNotFound, "reports are disabled")
	}
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleOwner {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ReportService) resolveWeek(ctx context.Context, weekNo int) (*models.Week, error) {
	week, err := s.weeks.GetByWeekNo(ctx, weekNo)
	if err != nil {
		return nil, appErrors.ErrWeekNotFound
	}
	return week, nil
}
