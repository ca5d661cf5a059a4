package handler

import (
	"strings"
	"time"

	"github.com/beaconbio/beacon/internal/app/service"
	infraprom "github.com/beaconbio/beacon/internal/infra/prometheus"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TrackDeps groups dependencies required by the tracking endpoint.
type TrackDeps struct {
	Logger   *zap.Logger
	Tracking *service.TrackingService
}

// TrackHandler implements the click ingestion endpoint consumed by public
// profile pages.
type TrackHandler struct {
	logger   *zap.Logger
	tracking *service.TrackingService
}

// NewTrackHandler creates a tracking handler with the provided dependencies.
func NewTrackHandler(deps TrackDeps) *TrackHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackHandler{
		logger:   logger,
		tracking: deps.Tracking,
	}
}

// Register wires tracking routes onto the provided router.
func (h *TrackHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Post("/api/track", h.Track)
}

// Health is a simple root endpoint so we know the service is running.
func (h *TrackHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "beacon",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// TrackRequest is the JSON body of a click submission. Everything else
// comes from ambient request headers.
type TrackRequest struct {
	LinkID   string `json:"linkId"`
	ClientID string `json:"clientId,omitempty"`
}

// TrackResponse reports the submission outcome. Reason is omitted when the
// click was tracked.
type TrackResponse struct {
	Success        bool   `json:"success"`
	Tracked        bool   `json:"tracked"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Retry          bool   `json:"retry,omitempty"`
}

// Track handles POST /api/track.
func (h *TrackHandler) Track(c *fiber.Ctx) error {
	var req TrackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.LinkID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing linkId",
		})
	}

	ctx := c.UserContext()

	result := h.tracking.TrackWithRetry(ctx, service.TrackRequest{
		LinkID:         req.LinkID,
		ClientID:       req.ClientID,
		IPAddress:      clientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
		Referrer:       c.Get(fiber.HeaderReferer),
		Country:        clientCountry(c),
		AcceptLanguage: c.Get(fiber.HeaderAcceptLanguage),
		AcceptEncoding: c.Get(fiber.HeaderAcceptEncoding),
		RequestURL:     c.BaseURL() + c.OriginalURL(),
		DoNotTrack:     c.Get("DNT") == "1",
	})

	infraprom.TrackOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case service.OutcomeLinkNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found or inactive",
		})
	case service.OutcomeRetriesExceeded:
		return c.Status(fiber.StatusServiceUnavailable).JSON(TrackResponse{
			Success: false,
			Reason:  string(result.Outcome),
			Retry:   true,
		})
	}

	resp := TrackResponse{
		Success:        result.Success,
		Tracked:        result.Tracked,
		IdempotencyKey: result.IdempotencyKey,
	}
	if !result.Tracked {
		resp.Reason = string(result.Outcome)
	}
	return c.JSON(resp)
}

// clientIP prefers the edge/proxy forwarding headers over the socket peer.
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}

func clientCountry(c *fiber.Ctx) string {
	if country := c.Get("CF-IPCountry"); country != "" {
		return country
	}
	return c.Get("X-Vercel-IP-Country")
}
