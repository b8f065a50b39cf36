package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "navpulse/internal/errors"
	"navpulse/internal/materializer"
	"navpulse/internal/services"
	"navpulse/internal/shared/testutil"
	"navpulse/pkg/contracts/domain"
)

type MockNAVService struct {
	mock.Mock
}

func (m *MockNAVService) Run(ctx context.Context, opts services.RunOptions) (*services.RunReport, error) {
	args := m.Called(ctx, opts)
	report, _ := args.Get(0).(*services.RunReport)
	return report, args.Error(1)
}

func (m *MockNAVService) LastRun() (*services.RunReport, bool) {
	args := m.Called()
	report, _ := args.Get(0).(*services.RunReport)
	return report, args.Bool(1)
}

func (m *MockNAVService) Running() bool {
	return m.Called().Bool(0)
}

func (m *MockNAVService) DefaultRange(ctx context.Context) (domain.DateRange, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.DateRange), args.Error(1)
}

func (m *MockNAVService) Coverage(ctx context.Context, r domain.DateRange) (*services.CoverageReport, error) {
	args := m.Called(ctx, r)
	cov, _ := args.Get(0).(*services.CoverageReport)
	return cov, args.Error(1)
}

func (m *MockNAVService) Stats(ctx context.Context) (domain.StoreStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StoreStats), args.Error(1)
}

func setupNAVHandler(t *testing.T) (*MockNAVService, http.Handler) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	svc := new(MockNAVService)
	h := NewNAVHandler(svc, time.Minute, logger, apierrors.NewErrorHandler(logger, false))

	r := chi.NewRouter()
	r.Mount("/api/v1", h.Routes())
	return svc, r
}

func dateRange(from, to string) domain.DateRange {
	return domain.NewDateRange(testutil.Day(from), testutil.Day(to))
}

func successfulReport(r domain.DateRange) *services.RunReport {
	return &services.RunReport{Result: &domain.MaterializationResult{
		RunID:   "run-1",
		Range:   r,
		Written: r.Days(),
	}}
}

func postMaterialize(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/materialize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func problemCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, apierrors.ContentTypeProblem, rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["error_code"].(string)
	return code
}

func TestMaterializeExplicitRange(t *testing.T) {
	svc, h := setupNAVHandler(t)
	want := dateRange("2024-01-01", "2024-01-05")

	svc.On("Run", mock.Anything, mock.MatchedBy(func(o services.RunOptions) bool {
		return o.Range != nil && o.Range.Start.Equal(want.Start) && o.Range.End.Equal(want.End) && o.SkipUpload && !o.SkipExport
	})).Return(successfulReport(want), nil)

	rec := postMaterialize(t, h, `{"from":"2024-01-01","to":"2024-01-05","skip_upload":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report services.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.Result.RunID)
	assert.Len(t, report.Result.Written, 5)
	svc.AssertExpectations(t)
}

func TestMaterializeDefaultRange(t *testing.T) {
	svc, h := setupNAVHandler(t)
	svc.On("Run", mock.Anything, services.RunOptions{}).
		Return(successfulReport(dateRange("2024-01-05", "2024-01-05")), nil)

	rec := postMaterialize(t, h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestMaterializeRunDetachedFromRequest(t *testing.T) {
	svc, h := setupNAVHandler(t)
	svc.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline
	}), mock.Anything).Return(successfulReport(dateRange("2024-01-05", "2024-01-05")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/materialize", nil).WithContext(ctx)
	cancel()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestMaterializePartialRun(t *testing.T) {
	svc, h := setupNAVHandler(t)
	report := successfulReport(dateRange("2024-01-01", "2024-01-02"))
	report.Result.Failed = []domain.DateFailure{{Date: testutil.Day("2024-01-02"), Reason: domain.ReasonRetriesExhausted}}
	svc.On("Run", mock.Anything, mock.Anything).Return(report, nil)

	rec := postMaterialize(t, h, `{"from":"2024-01-01","to":"2024-01-02"}`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestMaterializeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "reversed range",
			body:       `{"from":"2024-01-05","to":"2024-01-01"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeInvalidRange,
		},
		{
			name:       "bad date",
			body:       `{"from":"2024-13-01","to":"2024-01-01"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
		},
		{
			name:       "only one bound",
			body:       `{"from":"2024-01-01"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
		},
		{
			name:       "malformed body",
			body:       `{"from":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeInvalidRequest,
		},
		{
			name:       "run in progress",
			body:       `{}`,
			runErr:     services.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   apierrors.CodeRunInProgress,
		},
		{
			name:       "range rejected by materializer",
			body:       `{}`,
			runErr:     &materializer.InvalidRangeError{Cause: domain.ErrZeroDate},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeInvalidRange,
		},
		{
			name:       "store failure",
			body:       `{}`,
			runErr:     &materializer.StoreReadError{Cause: errors.New("io error")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, h := setupNAVHandler(t)
			if tt.runErr != nil {
				svc.On("Run", mock.Anything, mock.Anything).Return(nil, tt.runErr)
			}

			rec := postMaterialize(t, h, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, problemCode(t, rec))
			if tt.runErr == nil {
				svc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestMaterializeRequiresJSON(t *testing.T) {
	svc, h := setupNAVHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/materialize", strings.NewReader("from=2024-01-01"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	svc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestLatestRun(t *testing.T) {
	t.Run("none yet", func(t *testing.T) {
		svc, h := setupNAVHandler(t)
		svc.On("LastRun").Return(nil, false)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/materialize/latest", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apierrors.CodeNoRunYet, problemCode(t, rec))
	})

	t.Run("last report", func(t *testing.T) {
		svc, h := setupNAVHandler(t)
		svc.On("LastRun").Return(successfulReport(dateRange("2024-01-01", "2024-01-01")), true)
		svc.On("Running").Return(true)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/materialize/latest", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Running bool                `json:"running"`
			Report  services.RunReport `json:"report"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Running)
		assert.Equal(t, "run-1", body.Report.Result.RunID)
	})
}

func TestCoverageEndpoint(t *testing.T) {
	t.Run("explicit range", func(t *testing.T) {
		svc, h := setupNAVHandler(t)
		r := dateRange("2024-01-01", "2024-01-03")
		svc.On("Coverage", mock.Anything, r).Return(&services.CoverageReport{
			Range:   r,
			Present: []string{"2024-01-01", "2024-01-02"},
			Missing: []string{"2024-01-03"},
		}, nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coverage?from=2024-01-01&to=2024-01-03", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var cov services.CoverageReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cov))
		assert.Equal(t, []string{"2024-01-03"}, cov.Missing)
		svc.AssertNotCalled(t, "DefaultRange", mock.Anything)
	})

	t.Run("missing bound uses default range", func(t *testing.T) {
		svc, h := setupNAVHandler(t)
		svc.On("DefaultRange", mock.Anything).Return(dateRange("2024-01-04", "2024-01-05"), nil)
		svc.On("Coverage", mock.Anything, dateRange("2024-01-01", "2024-01-05")).
			Return(&services.CoverageReport{Present: []string{}, Missing: []string{}}, nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coverage?from=2024-01-01", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("bad date", func(t *testing.T) {
		_, h := setupNAVHandler(t)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coverage?from=yesterday&to=2024-01-01", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apierrors.CodeValidationFailed, problemCode(t, rec))
	})

	t.Run("reversed range", func(t *testing.T) {
		svc, h := setupNAVHandler(t)
		svc.On("Coverage", mock.Anything, mock.Anything).Return(nil, services.ErrInvalidInput)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coverage?from=2024-01-05&to=2024-01-01", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apierrors.CodeInvalidRange, problemCode(t, rec))
	})
}

func TestStatsEndpoint(t *testing.T) {
	svc, h := setupNAVHandler(t)
	svc.On("Stats", mock.Anything).Return(domain.StoreStats{Observations: 42, Schemes: 7}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.StoreStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 42, stats.Observations)
	assert.Equal(t, 7, stats.Schemes)
}
