package repository

import (
	"context"
	"errors"

	"github.com/beaconbio/beacon/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested link does not exist.
	ErrLinkNotFound = errors.New("link not found")
)

// LinkRepository is the read-only surface this core needs from the link
// store owned by the rest of the application.
type LinkRepository interface {
	GetByID(ctx context.Context, id string) (*model.Link, error)
	IDsByProfile(ctx context.Context, profileID string) ([]string, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) IDsByProfile(ctx context.Context, profileID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("profile_id = ?", profileID).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
