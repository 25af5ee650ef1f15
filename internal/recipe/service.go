package recipe

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
)

type Service struct {
	repo *Repo
	log  *logrus.Logger
}

func NewService(repo *Repo, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, log: log}
}

func validateRecipe(rec *Recipe) error {
	if strings.TrimSpace(rec.Title) == "" {
		return common.ErrValidation("recipe title is required")
	}
	if len([]rune(rec.Title)) > 100 {
		return common.ErrValidation("recipe title exceeds 100 characters")
	}
	if rec.Difficulty < 1 || rec.Difficulty > 5 {
		return common.ErrValidation("difficulty must be between 1 and 5")
	}
	if rec.PrepTime < 0 || rec.CookTime < 0 || rec.Calories < 0 || rec.Servings < 0 {
		return common.ErrValidation("numeric recipe fields must not be negative")
	}
	return nil
}

// Create stores a new recipe as a draft owned by authorID.
func (s *Service) Create(ctx context.Context, authorID uint64, rec *Recipe) (*Recipe, error) {
	if rec.Difficulty == 0 {
		rec.Difficulty = 1
	}
	if err := validateRecipe(rec); err != nil {
		return nil, err
	}
	rec.ID = 0
	rec.AuthorID = authorID
	rec.Status = StatusDraft
	rec.ViewCount, rec.FavoriteCount, rec.LikeCount = 0, 0, 0
	rec.Rating, rec.RatingCount = 0, 0
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, common.ErrInternal(err)
	}
	return rec, nil
}

// Get returns the recipe and counts the view. Drafts and review states are
// visible only to their author.
func (s *Service) Get(ctx context.Context, id, viewerID uint64) (*Recipe, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeRecipeNotFound, "recipe not found")
		}
		return nil, common.ErrInternal(err)
	}
	if rec.Status != StatusPublished && rec.AuthorID != viewerID {
		return nil, common.ErrNotFound(common.CodeRecipeNotFound, "recipe not found")
	}
	if err := s.repo.IncrementViewCount(ctx, id); err != nil {
		s.log.WithError(err).Warn("failed to count recipe view")
	} else {
		rec.ViewCount++
	}
	return rec, nil
}

func (s *Service) ownedRecipe(ctx context.Context, id, authorID uint64) (*Recipe, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeRecipeNotFound, "recipe not found")
		}
		return nil, common.ErrInternal(err)
	}
	if rec.AuthorID != authorID {
		return nil, common.ErrForbidden("recipe does not belong to user")
	}
	return rec, nil
}

// Update rewrites the editable fields of a draft or review-failed recipe.
func (s *Service) Update(ctx context.Context, id, authorID uint64, upd *Recipe) (*Recipe, error) {
	if upd.Difficulty == 0 {
		upd.Difficulty = 1
	}
	if err := validateRecipe(upd); err != nil {
		return nil, err
	}

	rec, err := s.ownedRecipe(ctx, id, authorID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusDraft && rec.Status != StatusReviewFailed {
		return nil, common.ErrNotAllowed("only draft or review-failed recipes can be edited")
	}

	rows, err := s.repo.UpdateGuarded(ctx, rec.ID, rec.Version, map[string]any{
		"title":          upd.Title,
		"description":    upd.Description,
		"cover_image":    upd.CoverImage,
		"category":       upd.Category,
		"cuisine":        upd.Cuisine,
		"difficulty":     upd.Difficulty,
		"prep_time":      upd.PrepTime,
		"cook_time":      upd.CookTime,
		"servings":       upd.Servings,
		"calories":       upd.Calories,
		"ingredients":    upd.Ingredients,
		"steps":          upd.Steps,
		"tags":           upd.Tags,
		"nutrition_info": upd.NutritionInfo,
	})
	if err != nil {
		return nil, common.ErrInternal(err)
	}
	if rows == 0 {
		return nil, common.ErrConflict("recipe was modified concurrently")
	}
	return s.repo.Get(ctx, rec.ID)
}

var recipeTransitions = map[int][]int{
	StatusDraft:        {StatusInReview},
	StatusInReview:     {StatusPublished, StatusReviewFailed},
	StatusReviewFailed: {StatusInReview},
	StatusPublished:    {StatusOffline},
	StatusOffline:      {StatusPublished},
}

// SetStatus moves the recipe through the publishing lifecycle.
func (s *Service) SetStatus(ctx context.Context, id, authorID uint64, status int) error {
	if status < StatusDraft || status > StatusReviewFailed {
		return common.ErrValidation("unknown recipe status")
	}
	rec, err := s.ownedRecipe(ctx, id, authorID)
	if err != nil {
		return err
	}

	allowed := false
	for _, to := range recipeTransitions[rec.Status] {
		if to == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return common.ErrNotAllowed("illegal recipe status transition")
	}

	rows, err := s.repo.UpdateGuarded(ctx, rec.ID, rec.Version, map[string]any{"status": status})
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		return common.ErrConflict("recipe was modified concurrently")
	}
	return nil
}

// Rate folds one published-recipe rating into the running average.
func (s *Service) Rate(ctx context.Context, id uint64, rating int) error {
	if rating < 1 || rating > 5 {
		return common.ErrValidation("rating must be between 1 and 5")
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrNotFound(common.CodeRecipeNotFound, "recipe not found")
		}
		return common.ErrInternal(err)
	}
	if rec.Status != StatusPublished {
		return common.ErrNotAllowed("only published recipes can be rated")
	}
	if err := s.repo.AddRating(ctx, id, rating); err != nil {
		return common.ErrInternal(err)
	}
	return nil
}

// Like counts one like on a published recipe.
func (s *Service) Like(ctx context.Context, id uint64) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrNotFound(common.CodeRecipeNotFound, "recipe not found")
		}
		return common.ErrInternal(err)
	}
	if rec.Status != StatusPublished {
		return common.ErrNotAllowed("only published recipes can be liked")
	}
	if err := s.repo.IncrementLikeCount(ctx, id); err != nil {
		return common.ErrInternal(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter, page, size int) ([]Recipe, int64, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	recipes, total, err := s.repo.ListPublished(ctx, f, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return recipes, total, nil
}

func (s *Service) ListMine(ctx context.Context, authorID uint64, page, size int) ([]Recipe, int64, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	recipes, total, err := s.repo.ListByAuthor(ctx, authorID, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return recipes, total, nil
}

// AddFavoriteCount is called by the favorites service when a recipe is
// favorited or unfavorited.
func (s *Service) AddFavoriteCount(ctx context.Context, id uint64, delta int) error {
	return s.repo.AddFavoriteCount(ctx, id, delta)
}

// Exists reports whether a published recipe with the id exists.
func (s *Service) Exists(ctx context.Context, id uint64) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, common.ErrInternal(err)
	}
	return true, nil
}
