package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/export"
)

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type transcriptProvider interface {
	Transcript(ctx context.Context, studentID string) (*models.Transcript, error)
}

type rosterProvider interface {
	ListSectionRoster(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
}

type sectionDetailProvider interface {
	Get(ctx context.Context, id string) (*models.SectionDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered document ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders transcripts and section grade sheets.
type ExportService struct {
	grades   transcriptProvider
	roster   rosterProvider
	sections sectionDetailProvider
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(grades transcriptProvider, roster rosterProvider, sections sectionDetailProvider, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		grades:   grades,
		roster:   roster,
		sections: sections,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// StudentTranscript renders a student's transcript in the requested format.
func (s *ExportService) StudentTranscript(ctx context.Context, studentID string, format ExportFormat) (*ExportFile, error) {
	transcript, err := s.grades.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}

	headers := []string{"Subject", "Section", "Credits", "Score (10)", "Score (4)", "Grade", "Result"}
	rows := make([]map[string]string, 0, len(transcript.Rows))
	for _, row := range transcript.Rows {
		rows = append(rows, map[string]string{
			"Subject":    row.SubjectName,
			"Section":    row.SectionName,
			"Credits":    fmt.Sprintf("%d", row.Credits),
			"Score (10)": formatScore(row.Total10),
			"Score (4)":  formatScore(row.Total4),
			"Grade":      stringOrEmpty(row.LetterGrade),
			"Result":     passLabel(row.Enrollment),
		})
	}
	dataset := export.Dataset{
		Headers: headers,
		Rows:    rows,
		Meta: []string{
			fmt.Sprintf("Credits earned: %d", transcript.TotalCredits),
			fmt.Sprintf("Cumulative GPA: %.2f", transcript.GPA),
		},
	}

	title := fmt.Sprintf("Transcript - %s (%s)", transcript.StudentName, transcript.StudentCode)
	base := fmt.Sprintf("transcript_%s", sanitizeFilename(transcript.StudentCode))
	return s.render(dataset, title, base, format)
}

// SectionGradeSheet renders the grade sheet of one section.
func (s *ExportService) SectionGradeSheet(ctx context.Context, sectionID string, format ExportFormat) (*ExportFile, error) {
	section, err := s.sections.Get(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	roster, err := s.roster.ListSectionRoster(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	headers := []string{"Student Code", "Student", "Score (10)", "Grade", "Result"}
	rows := make([]map[string]string, 0, len(roster))
	for _, e := range roster {
		rows = append(rows, map[string]string{
			"Student Code": e.StudentCode,
			"Student":      e.StudentName,
			"Score (10)":   formatScore(e.Total10),
			"Grade":        formatGrade(e.Enrollment),
			"Result":       passLabel(e.Enrollment),
		})
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}

	title := fmt.Sprintf("Grade Sheet - %s (%s)", section.Name, section.TermName)
	base := fmt.Sprintf("grades_%s", sanitizeFilename(section.Name))
	return s.render(dataset, title, base, format)
}

func (s *ExportService) render(dataset export.Dataset, title, base string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Payload: payload}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func passLabel(e models.Enrollment) string {
	if !e.Graded() {
		return "Pending"
	}
	if e.Passed {
		return "Passed"
	}
	return "Failed"
}

func sanitizeFilename(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	replacer := strings.NewReplacer(" ", "_", "/", "-", ".", "-")
	return replacer.Replace(v)
}
