package favorite

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FindAny looks the row up including soft-deleted ones, so Toggle can
// restore instead of violating the unique index.
func (r *Repo) FindAny(ctx context.Context, userID uint64, favType int, targetID uint64) (*Favorite, error) {
	var f Favorite
	err := r.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND favorite_type = ? AND target_id = ?", userID, favType, targetID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repo) Create(ctx context.Context, f *Favorite) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Repo) SoftDelete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Favorite{}, "id = ?", id).Error
}

// Restore clears deleted_at on a previously removed favorite.
func (r *Repo) Restore(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Unscoped().Model(&Favorite{}).
		Where("id = ?", id).
		Update("deleted_at", nil).Error
}

func (r *Repo) UpdateFields(ctx context.Context, id uint64, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Favorite{}).
		Where("id = ?", id).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// List pages a user's live favorites, optionally narrowed to one type,
// highest priority first.
func (r *Repo) List(ctx context.Context, userID uint64, favType, page, size int) ([]Favorite, int64, error) {
	q := r.db.WithContext(ctx).Model(&Favorite{}).Where("user_id = ?", userID)
	if favType > 0 {
		q = q.Where("favorite_type = ?", favType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var favs []Favorite
	if err := q.Order("priority DESC, updated_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&favs).Error; err != nil {
		return nil, 0, err
	}
	return favs, total, nil
}

func (r *Repo) IsFavorited(ctx context.Context, userID uint64, favType int, targetID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Favorite{}).
		Where("user_id = ? AND favorite_type = ? AND target_id = ?", userID, favType, targetID).
		Count(&n).Error
	return n > 0, err
}
