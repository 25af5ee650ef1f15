package favorite

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
)

// RecipeCounter is the hook back into the recipe catalog to keep the
// denormalized favorite_count in step.
type RecipeCounter interface {
	AddFavoriteCount(ctx context.Context, recipeID uint64, delta int) error
}

type Service struct {
	repo    *Repo
	recipes RecipeCounter
	log     *logrus.Logger
}

// NewService builds the favorites service. recipes may be nil when no
// counter maintenance is wanted.
func NewService(repo *Repo, recipes RecipeCounter, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, recipes: recipes, log: log}
}

func validType(t int) bool { return t >= TypeRecipe && t <= TypeOther }

// TargetMeta is the optional denormalized snapshot stored when a target is
// first favorited.
type TargetMeta struct {
	Name        string
	Description string
	Image       string
	GroupName   string
}

// Toggle flips the favorite state and returns the new state: true when the
// target is now favorited. Re-favoriting restores the old row, keeping any
// notes the user attached.
func (s *Service) Toggle(ctx context.Context, userID uint64, favType int, targetID uint64, meta TargetMeta) (bool, error) {
	if !validType(favType) {
		return false, common.ErrValidation("unknown favorite type")
	}
	if targetID == 0 {
		return false, common.ErrValidation("target id is required")
	}

	existing, err := s.repo.FindAny(ctx, userID, favType, targetID)
	switch {
	case err == nil && !existing.DeletedAt.Valid:
		if err := s.repo.SoftDelete(ctx, existing.ID); err != nil {
			return false, common.ErrInternal(err)
		}
		s.adjustCounter(ctx, favType, targetID, -1)
		return false, nil

	case err == nil:
		if err := s.repo.Restore(ctx, existing.ID); err != nil {
			return false, common.ErrInternal(err)
		}
		s.adjustCounter(ctx, favType, targetID, 1)
		return true, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		f := &Favorite{
			UserID:            userID,
			FavoriteType:      favType,
			TargetID:          targetID,
			TargetName:        meta.Name,
			TargetDescription: meta.Description,
			TargetImage:       meta.Image,
			GroupName:         meta.GroupName,
			Priority:          PriorityMedium,
		}
		if err := s.repo.Create(ctx, f); err != nil {
			return false, common.ErrInternal(err)
		}
		s.adjustCounter(ctx, favType, targetID, 1)
		return true, nil

	default:
		return false, common.ErrInternal(err)
	}
}

func (s *Service) adjustCounter(ctx context.Context, favType int, targetID uint64, delta int) {
	if favType != TypeRecipe || s.recipes == nil {
		return
	}
	if err := s.recipes.AddFavoriteCount(ctx, targetID, delta); err != nil {
		s.log.WithError(err).Warn("failed to adjust recipe favorite count")
	}
}

// SetNotes updates the note and priority on a live favorite.
func (s *Service) SetNotes(ctx context.Context, userID uint64, favType int, targetID uint64, notes string, priority int) error {
	if priority < PriorityLow || priority > PriorityHigh {
		return common.ErrValidation("priority must be between 1 and 3")
	}
	existing, err := s.repo.FindAny(ctx, userID, favType, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrNotFound(common.CodeDataNotFound, "favorite not found")
		}
		return common.ErrInternal(err)
	}
	if existing.DeletedAt.Valid {
		return common.ErrNotFound(common.CodeDataNotFound, "favorite not found")
	}
	if _, err := s.repo.UpdateFields(ctx, existing.ID, map[string]any{
		"notes":    notes,
		"priority": priority,
	}); err != nil {
		return common.ErrInternal(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uint64, favType, page, size int) ([]Favorite, int64, error) {
	if favType != 0 && !validType(favType) {
		return nil, 0, common.ErrValidation("unknown favorite type")
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	favs, total, err := s.repo.List(ctx, userID, favType, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return favs, total, nil
}

func (s *Service) IsFavorited(ctx context.Context, userID uint64, favType int, targetID uint64) (bool, error) {
	if !validType(favType) {
		return false, common.ErrValidation("unknown favorite type")
	}
	ok, err := s.repo.IsFavorited(ctx, userID, favType, targetID)
	if err != nil {
		return false, common.ErrInternal(err)
	}
	return ok, nil
}
