package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsFilter scopes aggregate queries to a set of links, an optional time
// range (Start inclusive, End exclusive), and the bot flag.
type StatsFilter struct {
	LinkIDs     []string
	Start       *time.Time
	End         *time.Time
	IncludeBots bool
}

// TimePoint is one calendar day present in the data. Empty days are not
// zero-filled.
type TimePoint struct {
	Date   time.Time
	Clicks int64
}

// BreakdownRow is one distinct value of a dimension with its click count.
type BreakdownRow struct {
	Value  string
	Clicks int64
}

// LinkCount ranks a link by its click count.
type LinkCount struct {
	LinkID string
	Clicks int64
}

// Dimension names accepted by CountByDimension, mapped to their columns.
var statsDimensions = map[string]string{
	"country":          "country",
	"device":           "device",
	"browser":          "browser",
	"operating_system": "operating_system",
	"referrer":         "referrer",
	"utm_source":       "utm_source",
	"utm_medium":       "utm_medium",
	"utm_campaign":     "utm_campaign",
	"utm_term":         "utm_term",
	"utm_content":      "utm_content",
}

// StatsRepository is the read side of the click store: aggregate SQL over
// the persisted events, side-effect free.
type StatsRepository interface {
	Totals(ctx context.Context, f StatsFilter) (totalClicks, uniqueVisitors int64, err error)
	ClicksByDay(ctx context.Context, f StatsFilter) ([]TimePoint, error)
	CountByDimension(ctx context.Context, f StatsFilter, dimension string) ([]BreakdownRow, error)
	TopLinks(ctx context.Context, f StatsFilter, limit int) ([]LinkCount, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository returns a pgx-backed StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) Totals(ctx context.Context, f StatsFilter) (int64, int64, error) {
	where, args := buildWhere(f)
	query := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(DISTINCT session_fingerprint) FROM click_events %s`, where)

	var total, unique int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total, &unique); err != nil {
		return 0, 0, fmt.Errorf("stats: totals: %w", err)
	}
	return total, unique, nil
}

func (r *statsRepository) ClicksByDay(ctx context.Context, f StatsFilter) ([]TimePoint, error) {
	where, args := buildWhere(f)
	query := fmt.Sprintf(
		`SELECT date_trunc('day', clicked_at)::date AS day, COUNT(*)
		 FROM click_events %s
		 GROUP BY day
		 ORDER BY day ASC`, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: clicks by day: %w", err)
	}
	defer rows.Close()

	var points []TimePoint
	for rows.Next() {
		var p TimePoint
		if err := rows.Scan(&p.Date, &p.Clicks); err != nil {
			return nil, fmt.Errorf("stats: clicks by day: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: clicks by day: %w", err)
	}
	return points, nil
}

func (r *statsRepository) CountByDimension(ctx context.Context, f StatsFilter, dimension string) ([]BreakdownRow, error) {
	column, ok := statsDimensions[dimension]
	if !ok {
		return nil, fmt.Errorf("stats: unknown dimension %q", dimension)
	}

	where, args := buildWhere(f)
	if where == "" {
		where = fmt.Sprintf("WHERE %s IS NOT NULL", column)
	} else {
		where += fmt.Sprintf(" AND %s IS NOT NULL", column)
	}

	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) AS clicks
		 FROM click_events %s
		 GROUP BY %s
		 ORDER BY clicks DESC`, column, where, column)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: count by %s: %w", dimension, err)
	}
	defer rows.Close()

	var result []BreakdownRow
	for rows.Next() {
		var row BreakdownRow
		if err := rows.Scan(&row.Value, &row.Clicks); err != nil {
			return nil, fmt.Errorf("stats: count by %s: %w", dimension, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: count by %s: %w", dimension, err)
	}
	return result, nil
}

func (r *statsRepository) TopLinks(ctx context.Context, f StatsFilter, limit int) ([]LinkCount, error) {
	if limit <= 0 {
		limit = 10
	}

	where, args := buildWhere(f)
	args = append(args, limit)
	query := fmt.Sprintf(
		`SELECT link_id, COUNT(*) AS clicks
		 FROM click_events %s
		 GROUP BY link_id
		 ORDER BY clicks DESC
		 LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: top links: %w", err)
	}
	defer rows.Close()

	var result []LinkCount
	for rows.Next() {
		var row LinkCount
		if err := rows.Scan(&row.LinkID, &row.Clicks); err != nil {
			return nil, fmt.Errorf("stats: top links: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: top links: %w", err)
	}
	return result, nil
}

func buildWhere(f StatsFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(f.LinkIDs) == 1 {
		args = append(args, f.LinkIDs[0])
		conds = append(conds, fmt.Sprintf("link_id = $%d", len(args)))
	} else if len(f.LinkIDs) > 1 {
		args = append(args, f.LinkIDs)
		conds = append(conds, fmt.Sprintf("link_id = ANY($%d)", len(args)))
	}
	if f.Start != nil {
		args = append(args, *f.Start)
		conds = append(conds, fmt.Sprintf("clicked_at >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		conds = append(conds, fmt.Sprintf("clicked_at < $%d", len(args)))
	}
	if !f.IncludeBots {
		conds = append(conds, "NOT is_bot")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
