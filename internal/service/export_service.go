package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportPageSize = 200

type resourceLister interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered catalogue ready to be sent as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the resource catalogue as CSV or PDF.
type ExportService struct {
	resources resourceLister
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(resources resourceLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		resources: resources,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Resources renders every resource matching filter in the requested format.
func (s *ExportService) Resources(ctx context.Context, filter models.ResourceFilter, format string) (*ExportResult, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	rows, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}
	dataset := resourceDataset(rows)

	stamp := s.now().Format("20060102_150405")
	result := &ExportResult{Filename: fmt.Sprintf("resources_%s.%s", stamp, format)}
	switch format {
	case ExportFormatPDF:
		result.ContentType = "application/pdf"
		result.Payload, err = s.pdf.Render(dataset, "Resource Catalogue")
	default:
		result.ContentType = "text/csv"
		result.Payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	s.logger.Info("resource export generated", zap.String("format", format), zap.Int("rows", len(rows)))
	return result, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, error) {
	filter.PageSize = exportPageSize
	var all []models.Resource
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.resources.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to load resources for export")
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

func resourceDataset(rows []models.Resource) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"ID", "Title", "Type", "Department", "Owner", "Supervisor", "Status", "Views", "Downloads", "Created"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, r := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":         r.ID,
			"Title":      r.Title,
			"Type":       string(r.Type),
			"Department": r.Department,
			"Owner":      r.OwnerName,
			"Supervisor": deref(r.SupervisorName),
			"Status":     string(r.Status),
			"Views":      strconv.FormatInt(r.Views, 10),
			"Downloads":  strconv.FormatInt(r.Downloads, 10),
			"Created":    r.CreatedAt.Format(time.RFC3339),
		})
	}
	return dataset
}
