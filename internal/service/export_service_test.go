package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

type resourceListerStub struct {
	items   []models.Resource
	filters []models.ResourceFilter
}

func (s *resourceListerStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	s.filters = append(s.filters, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(s.items) {
		return nil, len(s.items), nil
	}
	end := start + filter.PageSize
	if end > len(s.items) {
		end = len(s.items)
	}
	return s.items[start:end], len(s.items), nil
}

func catalogue(n int) []models.Resource {
	supervisor := "Dr. Mensah"
	items := make([]models.Resource, n)
	for i := range items {
		items[i] = models.Resource{
			ID:             fmt.Sprintf("r-%03d", i),
			Title:          fmt.Sprintf("Thesis %d", i),
			Type:           models.ResourceTypeThesis,
			Department:     "Computer Science",
			OwnerName:      "Ama K.",
			SupervisorName: &supervisor,
			Status:         models.ResourceStatusApproved,
			CreatedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
	}
	return items
}

func TestExportServiceCSVPagesThroughCatalogue(t *testing.T) {
	lister := &resourceListerStub{items: catalogue(250)}
	svc := NewExportService(lister, zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	result, err := svc.Resources(context.Background(), models.ResourceFilter{Status: models.ResourceStatusApproved}, "")
	require.NoError(t, err)
	assert.Equal(t, "resources_20240506_070809.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)
	require.Len(t, lister.filters, 2)
	assert.Equal(t, models.ResourceStatusApproved, lister.filters[1].Status)

	records, err := csv.NewReader(bytes.NewReader(result.Payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 251)
	assert.Equal(t, "Title", records[0][1])
	assert.Equal(t, "Thesis 0", records[1][1])
	assert.Equal(t, "Dr. Mensah", records[1][5])
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(&resourceListerStub{items: catalogue(3)}, zap.NewNop(), nil, nil)

	result, err := svc.Resources(context.Background(), models.ResourceFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Payload, []byte("%PDF")))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&resourceListerStub{}, zap.NewNop(), nil, nil)
	_, err := svc.Resources(context.Background(), models.ResourceFilter{}, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
