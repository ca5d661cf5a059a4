package service

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconbio/beacon/internal/app/repository"
)

const topLinksLimit = 10

// StatsRange scopes a stats query. Start is inclusive, End exclusive;
// bot clicks are excluded unless IncludeBots is set.
type StatsRange struct {
	Start       *time.Time
	End         *time.Time
	IncludeBots bool
}

// TimeSeriesPoint is one calendar day present in the data; days with zero
// clicks are omitted, not zero-filled.
type TimeSeriesPoint struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// BreakdownItem is a distinct dimension value with its click count.
type BreakdownItem struct {
	Value  string `json:"value"`
	Clicks int64  `json:"clicks"`
}

// Breakdowns groups the dimensional counts, each ordered by descending
// count.
type Breakdowns struct {
	Country         []BreakdownItem `json:"country"`
	Device          []BreakdownItem `json:"device"`
	Browser         []BreakdownItem `json:"browser"`
	OperatingSystem []BreakdownItem `json:"operating_system"`
	Referrer        []BreakdownItem `json:"referrer"`
	UTMSource       []BreakdownItem `json:"utm_source"`
	UTMMedium       []BreakdownItem `json:"utm_medium"`
	UTMCampaign     []BreakdownItem `json:"utm_campaign"`
	UTMTerm         []BreakdownItem `json:"utm_term"`
	UTMContent      []BreakdownItem `json:"utm_content"`
}

// LinkStats is the dashboard shape for a single link.
type LinkStats struct {
	LinkID         string            `json:"link_id"`
	TotalClicks    int64             `json:"total_clicks"`
	UniqueVisitors int64             `json:"unique_visitors"`
	ClicksOverTime []TimeSeriesPoint `json:"clicks_over_time"`
	Breakdowns     Breakdowns        `json:"breakdowns"`
}

// TopLink ranks one of a profile's links by clicks.
type TopLink struct {
	LinkID string `json:"link_id"`
	Clicks int64  `json:"clicks"`
}

// ProfileStats is the dashboard shape for all of a profile's links.
type ProfileStats struct {
	ProfileID      string            `json:"profile_id"`
	TotalClicks    int64             `json:"total_clicks"`
	UniqueVisitors int64             `json:"unique_visitors"`
	ClicksOverTime []TimeSeriesPoint `json:"clicks_over_time"`
	Breakdowns     Breakdowns        `json:"breakdowns"`
	TopLinks       []TopLink         `json:"top_links"`
}

// AnalyticsService answers read-only dashboard queries over the accumulated
// click events. A query either fully succeeds or fails; there are no
// partial results.
type AnalyticsService interface {
	LinkStats(ctx context.Context, linkID string, r StatsRange) (*LinkStats, error)
	ProfileStats(ctx context.Context, profileID string, r StatsRange) (*ProfileStats, error)
}

type analyticsService struct {
	stats repository.StatsRepository
	links repository.LinkRepository
}

// NewAnalyticsService returns the aggregation engine backed by the given
// repositories.
func NewAnalyticsService(stats repository.StatsRepository, links repository.LinkRepository) AnalyticsService {
	return &analyticsService{stats: stats, links: links}
}

func (s *analyticsService) LinkStats(ctx context.Context, linkID string, r StatsRange) (*LinkStats, error) {
	filter := repository.StatsFilter{
		LinkIDs:     []string{linkID},
		Start:       r.Start,
		End:         r.End,
		IncludeBots: r.IncludeBots,
	}

	total, unique, series, breakdowns, err := s.aggregate(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("link stats: %w", err)
	}

	return &LinkStats{
		LinkID:         linkID,
		TotalClicks:    total,
		UniqueVisitors: unique,
		ClicksOverTime: series,
		Breakdowns:     breakdowns,
	}, nil
}

func (s *analyticsService) ProfileStats(ctx context.Context, profileID string, r StatsRange) (*ProfileStats, error) {
	linkIDs, err := s.links.IDsByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}

	stats := &ProfileStats{
		ProfileID: profileID,
		TopLinks:  []TopLink{},
	}
	if len(linkIDs) == 0 {
		return stats, nil
	}

	filter := repository.StatsFilter{
		LinkIDs:     linkIDs,
		Start:       r.Start,
		End:         r.End,
		IncludeBots: r.IncludeBots,
	}

	total, unique, series, breakdowns, err := s.aggregate(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}

	top, err := s.stats.TopLinks(ctx, filter, topLinksLimit)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}
	for _, row := range top {
		stats.TopLinks = append(stats.TopLinks, TopLink{LinkID: row.LinkID, Clicks: row.Clicks})
	}

	stats.TotalClicks = total
	stats.UniqueVisitors = unique
	stats.ClicksOverTime = series
	stats.Breakdowns = breakdowns
	return stats, nil
}

func (s *analyticsService) aggregate(ctx context.Context, filter repository.StatsFilter) (int64, int64, []TimeSeriesPoint, Breakdowns, error) {
	var breakdowns Breakdowns

	total, unique, err := s.stats.Totals(ctx, filter)
	if err != nil {
		return 0, 0, nil, breakdowns, err
	}

	days, err := s.stats.ClicksByDay(ctx, filter)
	if err != nil {
		return 0, 0, nil, breakdowns, err
	}
	series := make([]TimeSeriesPoint, 0, len(days))
	for _, day := range days {
		series = append(series, TimeSeriesPoint{
			Date:   day.Date.Format("2006-01-02"),
			Clicks: day.Clicks,
		})
	}

	for dimension, target := range map[string]*[]BreakdownItem{
		"country":          &breakdowns.Country,
		"device":           &breakdowns.Device,
		"browser":          &breakdowns.Browser,
		"operating_system": &breakdowns.OperatingSystem,
		"referrer":         &breakdowns.Referrer,
		"utm_source":       &breakdowns.UTMSource,
		"utm_medium":       &breakdowns.UTMMedium,
		"utm_campaign":     &breakdowns.UTMCampaign,
		"utm_term":         &breakdowns.UTMTerm,
		"utm_content":      &breakdowns.UTMContent,
	} {
		rows, err := s.stats.CountByDimension(ctx, filter, dimension)
		if err != nil {
			return 0, 0, nil, breakdowns, err
		}
		items := make([]BreakdownItem, 0, len(rows))
		for _, row := range rows {
			items = append(items, BreakdownItem{Value: row.Value, Clicks: row.Clicks})
		}
		*target = items
	}

	return total, unique, series, breakdowns, nil
}
