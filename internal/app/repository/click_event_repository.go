package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beaconbio/beacon/internal/app/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateClick signals that a row with the same idempotency key
	// already exists. Expected under concurrent retries, not exceptional.
	ErrDuplicateClick = errors.New("click event already recorded")
)

const pgUniqueViolation = "23505"

// ClickEventRepository defines the data access contract for click events.
// There are no update or delete operations; rows are immutable.
type ClickEventRepository interface {
	Create(ctx context.Context, event *model.ClickEvent) error
	GetByIdempotencyKey(ctx context.Context, key string) (*model.ClickEvent, error)
	HasRecent(ctx context.Context, linkID, fingerprint string, since time.Time) (bool, error)
	CountRecent(ctx context.Context, linkID, fingerprint string, since time.Time) (int64, error)
}

type clickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository returns a GORM-backed ClickEventRepository.
func NewClickEventRepository(db *gorm.DB) ClickEventRepository {
	return &clickEventRepository{db: db}
}

// Create inserts the event, translating a unique-key violation on the
// idempotency index into ErrDuplicateClick.
func (r *clickEventRepository) Create(ctx context.Context, event *model.ClickEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateClick
		}
		return err
	}
	return nil
}

// GetByIdempotencyKey returns the event stored under the key, or nil when
// no such event exists.
func (r *clickEventRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.ClickEvent, error) {
	var event model.ClickEvent
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// HasRecent reports whether any click for (link, fingerprint) exists at or
// after the given instant.
func (r *clickEventRepository) HasRecent(ctx context.Context, linkID, fingerprint string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ClickEvent{}).
		Where("link_id = ? AND session_fingerprint = ? AND clicked_at >= ?", linkID, fingerprint, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRecent counts clicks for (link, fingerprint) at or after the given
// instant, for the sliding rate-limit window.
func (r *clickEventRepository) CountRecent(ctx context.Context, linkID, fingerprint string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ClickEvent{}).
		Where("link_id = ? AND session_fingerprint = ? AND clicked_at >= ?", linkID, fingerprint, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
