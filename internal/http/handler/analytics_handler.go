package handler

import (
	"time"

	"github.com/beaconbio/beacon/internal/app/repository"
	"github.com/beaconbio/beacon/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AnalyticsDeps groups dependencies required by the analytics endpoints.
type AnalyticsDeps struct {
	Logger    *zap.Logger
	Analytics service.AnalyticsService
	Links     repository.LinkRepository
	Redis     *redis.Client
}

// AnalyticsHandler serves the dashboard read side: aggregate stats and the
// live per-link counters.
type AnalyticsHandler struct {
	logger    *zap.Logger
	analytics service.AnalyticsService
	links     repository.LinkRepository
	rdb       *redis.Client
}

// NewAnalyticsHandler creates an analytics handler with the provided
// dependencies.
func NewAnalyticsHandler(deps AnalyticsDeps) *AnalyticsHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{
		logger:    logger,
		analytics: deps.Analytics,
		links:     deps.Links,
		rdb:       deps.Redis,
	}
}

// Register wires analytics routes onto the provided router.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		api.Get("/analytics", h.Stats)
		api.Get("/analytics/links", h.LiveCounts)
	}
}

// Stats handles GET /api/analytics. Exactly one of linkId or profileId
// scopes the query; linkId wins when both are present.
func (h *AnalyticsHandler) Stats(c *fiber.Ctx) error {
	linkID := c.Query("linkId")
	profileID := c.Query("profileId")
	if linkID == "" && profileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "linkId or profileId is required",
		})
	}

	statsRange, err := parseStatsRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctx := c.UserContext()

	if linkID != "" {
		stats, err := h.analytics.LinkStats(ctx, linkID, statsRange)
		if err != nil {
			h.logger.Error("failed to load link stats", zap.Error(err), zap.String("link_id", linkID))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load analytics",
			})
		}
		return c.JSON(stats)
	}

	stats, err := h.analytics.ProfileStats(ctx, profileID, statsRange)
	if err != nil {
		h.logger.Error("failed to load profile stats", zap.Error(err), zap.String("profile_id", profileID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load analytics",
		})
	}
	return c.JSON(stats)
}

// LiveCounts handles GET /api/analytics/links, the dashboard polling
// endpoint for per-link live counters.
func (h *AnalyticsHandler) LiveCounts(c *fiber.Ctx) error {
	profileID := c.Query("profileId")
	if profileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "profileId is required",
		})
	}

	ctx := c.UserContext()

	linkIDs, err := h.links.IDsByProfile(ctx, profileID)
	if err != nil {
		h.logger.Error("failed to list profile links", zap.Error(err), zap.String("profile_id", profileID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load link counts",
		})
	}

	counts, err := service.LiveCounts(ctx, h.rdb, linkIDs)
	if err != nil {
		h.logger.Error("failed to read live counts", zap.Error(err), zap.String("profile_id", profileID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load link counts",
		})
	}

	return c.JSON(fiber.Map{"counts": counts})
}

// parseStatsRange reads startDate/endDate (calendar dates, endDate
// inclusive) and includeBots from the query string.
func parseStatsRange(c *fiber.Ctx) (service.StatsRange, error) {
	var r service.StatsRange

	if raw := c.Query("startDate"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return r, fiber.NewError(fiber.StatusBadRequest, "invalid startDate")
		}
		r.Start = &start
	}
	if raw := c.Query("endDate"); raw != "" {
		end, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return r, fiber.NewError(fiber.StatusBadRequest, "invalid endDate")
		}
		// The filter's upper bound is exclusive; cover the whole end day.
		exclusive := end.Add(24 * time.Hour)
		r.End = &exclusive
	}
	r.IncludeBots = c.QueryBool("includeBots")

	return r, nil
}
