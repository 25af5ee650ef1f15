package recipe

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

func (r *Repo) Create(ctx context.Context, rec *Recipe) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Recipe, error) {
	var rec Recipe
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateGuarded is an optimistic version-checked update; the version bumps
// in the same statement.
func (r *Repo) UpdateGuarded(ctx context.Context, id uint64, version int, updates map[string]any) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&Recipe{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// IncrementViewCount bumps the counter atomically without touching version.
func (r *Repo) IncrementViewCount(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&Recipe{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

// AddFavoriteCount shifts the favorite counter by delta, clamped at zero.
func (r *Repo) AddFavoriteCount(ctx context.Context, id uint64, delta int) error {
	if delta >= 0 {
		return r.db.WithContext(ctx).Model(&Recipe{}).
			Where("id = ?", id).
			UpdateColumn("favorite_count", gorm.Expr("favorite_count + ?", delta)).Error
	}
	return r.db.WithContext(ctx).Model(&Recipe{}).
		Where("id = ? AND favorite_count >= ?", id, -delta).
		UpdateColumn("favorite_count", gorm.Expr("favorite_count + ?", delta)).Error
}

// IncrementLikeCount bumps the like counter atomically.
func (r *Repo) IncrementLikeCount(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&Recipe{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
}

// AddRating folds one rating into the running average.
func (r *Repo) AddRating(ctx context.Context, id uint64, rating int) error {
	return r.db.WithContext(ctx).Model(&Recipe{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"rating":       gorm.Expr("(rating * rating_count + ?) / (rating_count + 1)", rating),
			"rating_count": gorm.Expr("rating_count + 1"),
		}).Error
}

// ListPublished pages published recipes under the filter, most relevant
// (highest rated, then newest) first.
func (r *Repo) ListPublished(ctx context.Context, f ListFilter, page, size int) ([]Recipe, int64, error) {
	q := r.db.WithContext(ctx).Model(&Recipe{}).Where("status = ?", StatusPublished)

	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Cuisine != "" {
		q = q.Where("cuisine = ?", f.Cuisine)
	}
	if f.Difficulty > 0 {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	if f.MaxTotalMin > 0 {
		q = q.Where("prep_time + cook_time <= ?", f.MaxTotalMin)
	}
	if f.MaxCalories > 0 {
		q = q.Where("calories > 0 AND calories <= ?", f.MaxCalories)
	}
	if f.MinRating > 0 {
		q = q.Where("rating >= ?", f.MinRating)
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		q = q.Where("title LIKE ? OR description LIKE ? OR tags LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recipes []Recipe
	if err := q.Order("rating DESC, created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&recipes).Error; err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}

// ListByAuthor pages a user's own recipes in any status.
func (r *Repo) ListByAuthor(ctx context.Context, authorID uint64, page, size int) ([]Recipe, int64, error) {
	q := r.db.WithContext(ctx).Model(&Recipe{}).Where("author_id = ?", authorID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recipes []Recipe
	if err := q.Order("updated_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&recipes).Error; err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}
