package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beaconbio/beacon/internal/app/model"
	"github.com/beaconbio/beacon/internal/app/repository"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the closed set of reason codes a submission can end in.
type Outcome string

const (
	OutcomeTracked         Outcome = "tracked"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeRecentDuplicate Outcome = "rate_limited_duplicate"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeDoNotTrack      Outcome = "do_not_track"
	OutcomeLinkNotFound    Outcome = "link_not_found"
	OutcomeDatabaseError   Outcome = "database_error"
	OutcomeRetriesExceeded Outcome = "max_retries_exceeded"
)

const (
	defaultDedupWindow     = 24 * time.Hour
	defaultRateLimitWindow = 60 * time.Second
	defaultRateLimitMax    = 10
	defaultMaxRetries      = 3
	defaultRetryBaseDelay  = time.Second

	// Sizing of the in-process seen-key filter. A false positive only
	// costs one extra exact-key lookup against the store.
	seenKeyCapacity = 1_000_000
	seenKeyFPRate   = 0.01
)

// TrackRequest carries one submission: the link reference, the optional
// client id, and the ambient request signals.
type TrackRequest struct {
	LinkID   string
	ClientID string

	IPAddress      string
	UserAgent      string
	Referrer       string
	Country        string
	AcceptLanguage string
	AcceptEncoding string
	RequestURL     string

	DoNotTrack bool
}

// TrackResult is the tagged outcome of a submission. Policy outcomes
// (duplicate, rate limited, do-not-track) report Success true with Tracked
// false; only validation and exhausted retries report Success false.
type TrackResult struct {
	Success        bool
	Tracked        bool
	Outcome        Outcome
	IdempotencyKey string
}

// TrackingConfig tunes the ingest guards; zero values use the defaults.
type TrackingConfig struct {
	DedupWindow     time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

func (c TrackingConfig) withDefaults() TrackingConfig {
	if c.DedupWindow <= 0 {
		c.DedupWindow = defaultDedupWindow
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = defaultRateLimitMax
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	return c
}

// TrackingService runs the ingest pipeline for one submission: link
// validation, DNT, signal extraction, fingerprinting, the dedup guard with
// its rate limiter, and the insert.
type TrackingService struct {
	links     repository.LinkRepository
	clicks    repository.ClickEventRepository
	publisher *ClickPublisher
	logger    *zap.Logger
	cfg       TrackingConfig

	// Keys inserted by this process. A definite negative skips the
	// exact-key lookup; the unique index stays authoritative either way.
	seenMu sync.Mutex
	seen   *bloom.BloomFilter

	now func() time.Time
}

// NewTrackingService builds the ingest pipeline. The publisher may be nil;
// fan-out is best-effort and never affects outcomes.
func NewTrackingService(links repository.LinkRepository, clicks repository.ClickEventRepository, publisher *ClickPublisher, logger *zap.Logger, cfg TrackingConfig) *TrackingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingService{
		links:     links,
		clicks:    clicks,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		seen:      bloom.NewWithEstimates(seenKeyCapacity, seenKeyFPRate),
		now:       time.Now,
	}
}

// Track runs the pipeline once. Storage failures surface as
// OutcomeDatabaseError; TrackWithRetry governs whether they are retried.
func (s *TrackingService) Track(ctx context.Context, req TrackRequest) TrackResult {
	link, err := s.links.GetByID(ctx, req.LinkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return TrackResult{Outcome: OutcomeLinkNotFound}
		}
		s.logger.Error("failed to load link", zap.Error(err), zap.String("link_id", req.LinkID))
		return TrackResult{Outcome: OutcomeDatabaseError}
	}
	if !link.IsActive {
		return TrackResult{Outcome: OutcomeLinkNotFound}
	}

	if req.DoNotTrack {
		return TrackResult{Success: true, Outcome: OutcomeDoNotTrack}
	}

	now := s.now()
	fingerprint := SessionFingerprint(req.IPAddress, req.UserAgent, req.AcceptLanguage, req.AcceptEncoding)
	key := IdempotencyKey(req.LinkID, fingerprint, TimeBucket(now), req.ClientID)

	// Exact-retry defense: the same submission resent maps to the same key.
	keyChecked := false
	if s.maybeSeen(key) {
		keyChecked = true
		existing, err := s.clicks.GetByIdempotencyKey(ctx, key)
		if err != nil {
			s.logger.Error("idempotency lookup failed", zap.Error(err), zap.String("link_id", req.LinkID))
			return TrackResult{Outcome: OutcomeDatabaseError, IdempotencyKey: key}
		}
		if existing != nil {
			return TrackResult{Success: true, Outcome: OutcomeDuplicate, IdempotencyKey: key}
		}
	}

	// Business dedup: one counted click per visitor per link per day.
	recent, err := s.clicks.HasRecent(ctx, req.LinkID, fingerprint, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		s.logger.Error("dedup window lookup failed", zap.Error(err), zap.String("link_id", req.LinkID))
		return TrackResult{Outcome: OutcomeDatabaseError, IdempotencyKey: key}
	}
	if recent {
		// The pre-filter forgets keys across restarts and never sees keys
		// written by other replicas. An exact retry that slipped past it
		// must still report duplicate, not the window outcome.
		if !keyChecked {
			existing, err := s.clicks.GetByIdempotencyKey(ctx, key)
			if err != nil {
				s.logger.Error("idempotency lookup failed", zap.Error(err), zap.String("link_id", req.LinkID))
				return TrackResult{Outcome: OutcomeDatabaseError, IdempotencyKey: key}
			}
			if existing != nil {
				s.markSeen(key)
				return TrackResult{Success: true, Outcome: OutcomeDuplicate, IdempotencyKey: key}
			}
		}
		return TrackResult{Success: true, Outcome: OutcomeRecentDuplicate, IdempotencyKey: key}
	}

	// Sliding-window flood guard, much narrower than the dedup window.
	count, err := s.clicks.CountRecent(ctx, req.LinkID, fingerprint, now.Add(-s.cfg.RateLimitWindow))
	if err != nil {
		s.logger.Error("rate limit lookup failed", zap.Error(err), zap.String("link_id", req.LinkID))
		return TrackResult{Outcome: OutcomeDatabaseError, IdempotencyKey: key}
	}
	if count >= int64(s.cfg.RateLimitMax) {
		return TrackResult{Success: true, Outcome: OutcomeRateLimited, IdempotencyKey: key}
	}

	attrs := ExtractAttributes(Signals{
		UserAgent:  req.UserAgent,
		Referrer:   req.Referrer,
		RequestURL: req.RequestURL,
		Country:    req.Country,
	})

	event := &model.ClickEvent{
		ID:                 uuid.New().String(),
		LinkID:             req.LinkID,
		IPAddress:          nilIfEmpty(req.IPAddress),
		UserAgent:          nilIfEmpty(req.UserAgent),
		Country:            attrs.Country,
		Device:             attrs.Device,
		Browser:            attrs.Browser,
		OperatingSystem:    attrs.OperatingSystem,
		Referrer:           attrs.Referrer,
		UTMSource:          attrs.UTMSource,
		UTMMedium:          attrs.UTMMedium,
		UTMCampaign:        attrs.UTMCampaign,
		UTMTerm:            attrs.UTMTerm,
		UTMContent:         attrs.UTMContent,
		SessionFingerprint: fingerprint,
		IdempotencyKey:     key,
		IsBot:              attrs.IsBot,
		ClickedAt:          now,
	}

	if err := s.clicks.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateClick) {
			// Lost the insert race; the other writer counted the click.
			s.markSeen(key)
			return TrackResult{Success: true, Outcome: OutcomeDuplicate, IdempotencyKey: key}
		}
		s.logger.Error("failed to persist click event", zap.Error(err), zap.String("link_id", req.LinkID))
		return TrackResult{Outcome: OutcomeDatabaseError, IdempotencyKey: key}
	}
	s.markSeen(key)

	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			s.logger.Warn("failed to publish click event",
				zap.Error(err),
				zap.String("link_id", event.LinkID),
				zap.String("id", event.ID))
		}
	}

	return TrackResult{Success: true, Tracked: true, Outcome: OutcomeTracked, IdempotencyKey: key}
}

// TrackWithRetry wraps Track with the transient-failure policy: only
// database errors are retried, with linearly increasing backoff, up to the
// attempt ceiling. Every other outcome is terminal.
func (s *TrackingService) TrackWithRetry(ctx context.Context, req TrackRequest) TrackResult {
	var last TrackResult
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBaseDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return TrackResult{Outcome: OutcomeRetriesExceeded}
			}
		}

		last = s.Track(ctx, req)
		if last.Outcome != OutcomeDatabaseError {
			return last
		}
	}

	s.logger.Warn("tracking retries exhausted",
		zap.String("link_id", req.LinkID),
		zap.Int("attempts", s.cfg.MaxRetries))
	return TrackResult{Outcome: OutcomeRetriesExceeded}
}

func (s *TrackingService) maybeSeen(key string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.seen.TestString(key)
}

func (s *TrackingService) markSeen(key string) {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	s.seen.AddString(key)
}
