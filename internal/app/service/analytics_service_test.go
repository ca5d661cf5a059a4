package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beaconbio/beacon/internal/app/repository"
)

type mockStatsRepository struct {
	totalsFn   func(ctx context.Context, f repository.StatsFilter) (int64, int64, error)
	byDayFn    func(ctx context.Context, f repository.StatsFilter) ([]repository.TimePoint, error)
	byDimFn    func(ctx context.Context, f repository.StatsFilter, dimension string) ([]repository.BreakdownRow, error)
	topLinksFn func(ctx context.Context, f repository.StatsFilter, limit int) ([]repository.LinkCount, error)
}

func (m *mockStatsRepository) Totals(ctx context.Context, f repository.StatsFilter) (int64, int64, error) {
	if m.totalsFn != nil {
		return m.totalsFn(ctx, f)
	}
	return 0, 0, nil
}

func (m *mockStatsRepository) ClicksByDay(ctx context.Context, f repository.StatsFilter) ([]repository.TimePoint, error) {
	if m.byDayFn != nil {
		return m.byDayFn(ctx, f)
	}
	return nil, nil
}

func (m *mockStatsRepository) CountByDimension(ctx context.Context, f repository.StatsFilter, dimension string) ([]repository.BreakdownRow, error) {
	if m.byDimFn != nil {
		return m.byDimFn(ctx, f, dimension)
	}
	return nil, nil
}

func (m *mockStatsRepository) TopLinks(ctx context.Context, f repository.StatsFilter, limit int) ([]repository.LinkCount, error) {
	if m.topLinksFn != nil {
		return m.topLinksFn(ctx, f, limit)
	}
	return nil, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAnalyticsService_LinkStatsRoundTrip(t *testing.T) {
	stats := &mockStatsRepository{
		totalsFn: func(ctx context.Context, f repository.StatsFilter) (int64, int64, error) {
			if len(f.LinkIDs) != 1 || f.LinkIDs[0] != "link-1" {
				t.Fatalf("unexpected filter %+v", f)
			}
			if f.IncludeBots {
				t.Fatal("bots must be excluded by default")
			}
			return 5, 3, nil
		},
		byDayFn: func(ctx context.Context, f repository.StatsFilter) ([]repository.TimePoint, error) {
			return []repository.TimePoint{
				{Date: day(2026, 3, 13), Clicks: 2},
				{Date: day(2026, 3, 14), Clicks: 3},
			}, nil
		},
		byDimFn: func(ctx context.Context, f repository.StatsFilter, dimension string) ([]repository.BreakdownRow, error) {
			if dimension == "device" {
				return []repository.BreakdownRow{
					{Value: "mobile", Clicks: 4},
					{Value: "desktop", Clicks: 1},
				}, nil
			}
			return nil, nil
		},
	}

	svc := NewAnalyticsService(stats, &mockLinkRepository{})
	got, err := svc.LinkStats(context.Background(), "link-1", StatsRange{})
	if err != nil {
		t.Fatalf("LinkStats error: %v", err)
	}

	if got.TotalClicks != 5 || got.UniqueVisitors != 3 {
		t.Fatalf("totals = %d/%d, want 5/3", got.TotalClicks, got.UniqueVisitors)
	}

	var sum int64
	for _, point := range got.ClicksOverTime {
		sum += point.Clicks
	}
	if sum != got.TotalClicks {
		t.Fatalf("time series sums to %d, want %d", sum, got.TotalClicks)
	}
	if got.ClicksOverTime[0].Date != "2026-03-13" || got.ClicksOverTime[1].Date != "2026-03-14" {
		t.Fatalf("time series not ascending: %+v", got.ClicksOverTime)
	}

	if len(got.Breakdowns.Device) != 2 || got.Breakdowns.Device[0].Value != "mobile" {
		t.Fatalf("device breakdown = %+v", got.Breakdowns.Device)
	}
	if got.Breakdowns.Device[0].Clicks < got.Breakdowns.Device[1].Clicks {
		t.Fatal("breakdown must be ordered by descending count")
	}
}

func TestAnalyticsService_ProfileStats(t *testing.T) {
	links := &mockLinkRepository{
		idsFn: func(ctx context.Context, profileID string) ([]string, error) {
			return []string{"link-1", "link-2"}, nil
		},
	}
	stats := &mockStatsRepository{
		totalsFn: func(ctx context.Context, f repository.StatsFilter) (int64, int64, error) {
			if len(f.LinkIDs) != 2 {
				t.Fatalf("filter scoped to %d links, want 2", len(f.LinkIDs))
			}
			return 7, 4, nil
		},
		topLinksFn: func(ctx context.Context, f repository.StatsFilter, limit int) ([]repository.LinkCount, error) {
			if limit != 10 {
				t.Fatalf("top links limit = %d, want 10", limit)
			}
			return []repository.LinkCount{
				{LinkID: "link-2", Clicks: 5},
				{LinkID: "link-1", Clicks: 2},
			}, nil
		},
	}

	svc := NewAnalyticsService(stats, links)
	got, err := svc.ProfileStats(context.Background(), "profile-1", StatsRange{})
	if err != nil {
		t.Fatalf("ProfileStats error: %v", err)
	}
	if got.TotalClicks != 7 || got.UniqueVisitors != 4 {
		t.Fatalf("totals = %d/%d, want 7/4", got.TotalClicks, got.UniqueVisitors)
	}
	if len(got.TopLinks) != 2 || got.TopLinks[0].LinkID != "link-2" {
		t.Fatalf("top links = %+v", got.TopLinks)
	}
}

func TestAnalyticsService_ProfileWithoutLinks(t *testing.T) {
	links := &mockLinkRepository{
		idsFn: func(ctx context.Context, profileID string) ([]string, error) {
			return nil, nil
		},
	}
	stats := &mockStatsRepository{
		totalsFn: func(ctx context.Context, f repository.StatsFilter) (int64, int64, error) {
			t.Fatal("stats must not be queried for a profile without links")
			return 0, 0, nil
		},
	}

	svc := NewAnalyticsService(stats, links)
	got, err := svc.ProfileStats(context.Background(), "profile-1", StatsRange{})
	if err != nil {
		t.Fatalf("ProfileStats error: %v", err)
	}
	if got.TotalClicks != 0 || got.UniqueVisitors != 0 || len(got.TopLinks) != 0 {
		t.Fatalf("expected empty stats, got %+v", got)
	}
}

func TestAnalyticsService_StorageErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection reset")
	stats := &mockStatsRepository{
		totalsFn: func(ctx context.Context, f repository.StatsFilter) (int64, int64, error) {
			return 0, 0, wantErr
		},
	}

	svc := NewAnalyticsService(stats, &mockLinkRepository{})
	if _, err := svc.LinkStats(context.Background(), "link-1", StatsRange{}); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}
