package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"navpulse/internal/exporter"
	"navpulse/internal/objectstore"
	"navpulse/pkg/contracts/domain"
)

// MockExporter is a mock for the Exporter interface
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) ExportAll(ctx context.Context) ([]exporter.ExportedFile, error) {
	args := m.Called(ctx)
	files, _ := args.Get(0).([]exporter.ExportedFile)
	return files, args.Error(1)
}

func (m *MockExporter) ExportDates(ctx context.Context, dates []time.Time) ([]exporter.ExportedFile, error) {
	args := m.Called(ctx, dates)
	files, _ := args.Get(0).([]exporter.ExportedFile)
	return files, args.Error(1)
}

// MockReporter is a mock for the Reporter interface
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Write(result *domain.MaterializationResult) (string, error) {
	args := m.Called(result)
	return args.String(0), args.Error(1)
}

// MockUploader is a mock for the Uploader interface
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) UploadExport(ctx context.Context, path string, ts time.Time, suffix string) (objectstore.Upload, error) {
	args := m.Called(ctx, path, ts, suffix)
	up, _ := args.Get(0).(objectstore.Upload)
	return up, args.Error(1)
}

// MockPinger is a mock for the Pinger interface
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockMetadataSource is a mock for the MetadataSource interface
type MockMetadataSource struct {
	mock.Mock
}

func (m *MockMetadataSource) SchemeMetadata(ctx context.Context) ([]domain.SchemeMetadata, error) {
	args := m.Called(ctx)
	schemes, _ := args.Get(0).([]domain.SchemeMetadata)
	return schemes, args.Error(1)
}

// MockMetadataStore is a mock for the MetadataStore interface
type MockMetadataStore struct {
	mock.Mock
}

func (m *MockMetadataStore) MergeSchemeMetadata(ctx context.Context, schemes []domain.SchemeMetadata, today time.Time) (domain.MetadataMerge, error) {
	args := m.Called(ctx, schemes, today)
	res, _ := args.Get(0).(domain.MetadataMerge)
	return res, args.Error(1)
}

// MockCompletenessWriter is a mock for the CompletenessWriter interface
type MockCompletenessWriter struct {
	mock.Mock
}

func (m *MockCompletenessWriter) WriteCompleteness(rows []exporter.CompletenessRow, at time.Time) (string, error) {
	args := m.Called(rows, at)
	return args.String(0), args.Error(1)
}
