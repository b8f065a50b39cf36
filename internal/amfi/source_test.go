package amfi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/internal/materializer"
	"navpulse/pkg/contracts/domain"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newTestSource(t *testing.T, handler http.HandlerFunc, opts ...SourceOption) (*Source, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return NewSource(client, opts...), srv
}

func TestHistoryURL(t *testing.T) {
	client, err := NewClient(ClientConfig{})
	require.NoError(t, err)

	got := client.HistoryURL(mustDay(t, "2024-01-02"), mustDay(t, "2024-01-02"))
	assert.Equal(t, "https://portal.amfiindia.com/DownloadNAVHistoryReport_Po.aspx?frmdt=02-Jan-2024&todt=02-Jan-2024&tp=1", got)
}

func TestSourceFetch(t *testing.T) {
	var gotQuery, gotUA string
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(sampleReport))
	})

	recs, err := src.Fetch(context.Background(), mustDay(t, "2024-01-02"))
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Contains(t, gotQuery, "frmdt=02-Jan-2024")
	assert.Contains(t, gotQuery, "todt=02-Jan-2024")
	assert.Equal(t, defaultUserAgent, gotUA)
}

func TestSourceFetchEmptyReportIsNoData(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date\r\n"))
	})

	_, err := src.Fetch(context.Background(), mustDay(t, "2024-01-26"))
	assert.ErrorIs(t, err, materializer.ErrNoDataForDate)
}

func TestSourceHeaderOnlyTodayIsNotPublished(t *testing.T) {
	var calls int32
	// 2024-03-11 12:00 UTC
	now := func() time.Time { return time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC) }
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date\r\n"))
	}, WithSourceClock(now))

	tests := []struct {
		date      string
		wantCalls int32
		notPub    bool
	}{
		{date: "2024-03-08", wantCalls: 1},
		{date: "2024-03-11", wantCalls: 2, notPub: true},
		{date: "2024-03-15", wantCalls: 2, notPub: true},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			_, err := src.Fetch(context.Background(), mustDay(t, tt.date))
			if tt.notPub {
				assert.ErrorIs(t, err, materializer.ErrNotYetPublished)
				assert.NotErrorIs(t, err, materializer.ErrNoDataForDate)
				assert.False(t, materializer.IsTransient(err))
			} else {
				assert.ErrorIs(t, err, materializer.ErrNoDataForDate)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestSourceSkipsWeekends(t *testing.T) {
	var calls int32
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(sampleReport))
	}, WithSkipWeekends(true))

	_, err := src.Fetch(context.Background(), mustDay(t, "2024-01-06"))
	assert.ErrorIs(t, err, materializer.ErrNoDataForDate)
	_, err = src.Fetch(context.Background(), mustDay(t, "2024-01-07"))
	assert.ErrorIs(t, err, materializer.ErrNoDataForDate)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSourceErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"server error", http.StatusInternalServerError, "", true},
		{"bad gateway", http.StatusBadGateway, "", true},
		{"throttled", http.StatusTooManyRequests, "", true},
		{"not found", http.StatusNotFound, "", false},
		{"bad request", http.StatusBadRequest, "", false},
		{"maintenance page", http.StatusOK, "<html><body>Under maintenance</body></html>", true},
		{"garbage", http.StatusOK, "119551;fund;x;y;1;;;02-Jan-2024", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := src.Fetch(context.Background(), mustDay(t, "2024-01-02"))
			require.Error(t, err)
			assert.NotErrorIs(t, err, materializer.ErrNoDataForDate)
			assert.Equal(t, tt.wantTransient, materializer.IsTransient(err))
		})
	}
}

func TestSourceTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = NewSource(client).Fetch(context.Background(), mustDay(t, "2024-01-02"))
	require.Error(t, err)
	assert.True(t, materializer.IsTransient(err))

	var te *materializer.TransientFetchError
	assert.ErrorAs(t, err, &te)
}

func TestSourceCancelledContext(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := src.Fetch(ctx, mustDay(t, "2024-01-02"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleReport))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSecond: 20, Burst: 1})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.NAVHistory(context.Background(), mustDay(t, "2024-01-02"), mustDay(t, "2024-01-02"))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
