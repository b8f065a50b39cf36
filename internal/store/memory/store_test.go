package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/pkg/contracts/domain"
)

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func obs(code, date, nav string) domain.NAVObservation {
	return domain.NAVObservation{
		SchemeCode: code,
		SchemeName: "Scheme " + code,
		Date:       day(date),
		NAV:        decimal.RequireFromString(nav),
	}
}

func TestUpsertReplacesExistingKey(t *testing.T) {
	ctx := context.Background()
	s := New()

	n, err := s.Upsert(ctx, day("2024-01-02"), []domain.NAVObservation{
		obs("100001", "2024-01-02", "10.50"),
		obs("100002", "2024-01-02", "20.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Upsert(ctx, day("2024-01-02"), []domain.NAVObservation{
		obs("100001", "2024-01-02", "10.75"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("100001", day("2024-01-02"))
	require.True(t, ok)
	assert.True(t, got.NAV.Equal(decimal.RequireFromString("10.75")))
}

func TestExistingDatesIncludesNoDataMarkers(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Upsert(ctx, day("2024-01-02"), []domain.NAVObservation{obs("100001", "2024-01-02", "10")})
	require.NoError(t, err)
	require.NoError(t, s.MarkNoData(ctx, day("2024-01-06")))
	require.NoError(t, s.MarkNoData(ctx, day("2024-02-01")))

	dates, err := s.ExistingDates(ctx, domain.NewDateRange(day("2024-01-01"), day("2024-01-31")))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day("2024-01-02"), day("2024-01-06")}, dates.Sorted())
}

func TestUpsertClearsNoDataMarker(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.MarkNoData(ctx, day("2024-01-26")))
	_, err := s.Upsert(ctx, day("2024-01-26"), []domain.NAVObservation{obs("100001", "2024-01-26", "10")})
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.NoDataDates)
	assert.Equal(t, 1, st.Observations)
}

func TestSchemeRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Upsert(ctx, day("2024-01-01"), []domain.NAVObservation{
		obs("100001", "2024-01-01", "10"),
		obs("100002", "2024-01-01", "20"),
	})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, day("2024-01-02"), []domain.NAVObservation{
		obs("100001", "2024-01-02", "11"),
	})
	require.NoError(t, err)

	schemes, err := s.Schemes(ctx)
	require.NoError(t, err)
	require.Len(t, schemes, 2)

	assert.Equal(t, "100001", schemes[0].SchemeCode)
	assert.Equal(t, day("2024-01-01"), schemes[0].FirstSeenDate)
	assert.Equal(t, day("2024-01-02"), schemes[0].LastSeenDate)
	assert.True(t, schemes[0].IsActive)

	assert.Equal(t, "100002", schemes[1].SchemeCode)
	assert.Equal(t, day("2024-01-01"), schemes[1].LastSeenDate)
	assert.False(t, schemes[1].IsActive)

	// backfilling an older date does not move last_seen backwards
	_, err = s.Upsert(ctx, day("2023-12-29"), []domain.NAVObservation{
		obs("100002", "2023-12-29", "19"),
	})
	require.NoError(t, err)
	schemes, err = s.Schemes(ctx)
	require.NoError(t, err)
	assert.Equal(t, day("2023-12-29"), schemes[1].FirstSeenDate)
	assert.Equal(t, day("2024-01-01"), schemes[1].LastSeenDate)
}

func TestConcurrentUpsertsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, day("2024-03-15"), []domain.NAVObservation{
				obs("100001", "2024-03-15", "10"),
				obs("100002", "2024-03-15", "20"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 20, s.UpsertCalls())
}

func TestCancelledContextRejectsWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	_, err := s.Upsert(ctx, day("2024-01-01"), []domain.NAVObservation{obs("100001", "2024-01-01", "10")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.MarkNoData(ctx, day("2024-01-01")), context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func TestDailySchemeCounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Upsert(ctx, day("2024-01-03"), []domain.NAVObservation{obs("100001", "2024-01-03", "10")})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, day("2024-01-02"), []domain.NAVObservation{
		obs("100001", "2024-01-02", "10"),
		obs("100002", "2024-01-02", "20"),
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkNoData(ctx, day("2024-01-04")))

	counts, err := s.DailySchemeCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailySchemeCount{
		{Date: day("2024-01-02"), Schemes: 2},
		{Date: day("2024-01-03"), Schemes: 1},
	}, counts)
}
