package recipe

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&Recipe{}))
	return gdb
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewRepo(openTestDB(t)), nil)
}

func draft(title string) *Recipe {
	return &Recipe{
		Title:      title,
		Category:   "breakfast",
		Cuisine:    "western",
		Difficulty: 2,
		PrepTime:   10,
		CookTime:   15,
		Calories:   350,
	}
}

func publish(t *testing.T, svc *Service, authorID uint64, rec *Recipe) *Recipe {
	t.Helper()
	created, err := svc.Create(context.Background(), authorID, rec)
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(context.Background(), created.ID, authorID, StatusInReview))
	require.NoError(t, svc.SetStatus(context.Background(), created.ID, authorID, StatusPublished))
	return created
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, &Recipe{Title: "  ", Difficulty: 1})
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeValidation, ae.Code)

	_, err = svc.Create(ctx, 1, &Recipe{Title: "ok", Difficulty: 9})
	require.Error(t, err)

	created, err := svc.Create(ctx, 1, draft("Spinach omelette"))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, created.Status)
	require.EqualValues(t, 1, created.AuthorID)
}

func TestGetCountsViewsAndHidesDrafts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, draft("Spinach omelette"))
	require.NoError(t, err)

	// drafts are invisible to other users
	_, err = svc.Get(ctx, created.ID, 2)
	ae, _ := common.AsAppError(err)
	require.Equal(t, common.CodeRecipeNotFound, ae.Code)

	// but visible to the author, and views count
	got, err := svc.Get(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, got.ViewCount)

	got, err = svc.Get(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 2, got.ViewCount)

	_, err = svc.Get(ctx, 9999, 1)
	ae, _ = common.AsAppError(err)
	require.Equal(t, common.CodeRecipeNotFound, ae.Code)
}

func TestPublishingLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, draft("Spinach omelette"))
	require.NoError(t, err)

	// draft cannot go straight to published
	err = svc.SetStatus(ctx, created.ID, 1, StatusPublished)
	ae, _ := common.AsAppError(err)
	require.Equal(t, common.CodeOperationNotAllowed, ae.Code)

	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusInReview))
	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusPublished))

	// now visible to everyone
	_, err = svc.Get(ctx, created.ID, 2)
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusOffline))
	_, err = svc.Get(ctx, created.ID, 2)
	require.Error(t, err)

	// only the author may manage status
	err = svc.SetStatus(ctx, created.ID, 2, StatusPublished)
	ae, _ = common.AsAppError(err)
	require.Equal(t, common.CodeForbidden, ae.Code)
}

func TestUpdateOnlyInEditableStates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, draft("Spinach omelette"))
	require.NoError(t, err)

	upd := draft("Spinach and feta omelette")
	got, err := svc.Update(ctx, created.ID, 1, upd)
	require.NoError(t, err)
	require.Equal(t, "Spinach and feta omelette", got.Title)
	require.Equal(t, 2, got.Version, "optimistic version bumps on update")

	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusInReview))
	_, err = svc.Update(ctx, created.ID, 1, draft("nope"))
	ae, _ := common.AsAppError(err)
	require.Equal(t, common.CodeOperationNotAllowed, ae.Code)
}

func TestStaleVersionConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, draft("Spinach omelette"))
	require.NoError(t, err)

	// a guarded update with an outdated version touches no rows
	rows, err := svc.repo.UpdateGuarded(ctx, created.ID, created.Version+5, map[string]any{"title": "stale"})
	require.NoError(t, err)
	require.Zero(t, rows)

	got, err := svc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Spinach omelette", got.Title)
}

func TestRatingAverages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created := publish(t, svc, 1, draft("Spinach omelette"))

	require.Error(t, svc.Rate(ctx, created.ID, 0))
	require.Error(t, svc.Rate(ctx, created.ID, 6))

	require.NoError(t, svc.Rate(ctx, created.ID, 4))
	require.NoError(t, svc.Rate(ctx, created.ID, 2))

	got, err := svc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.RatingCount)
	require.InDelta(t, 3.0, got.Rating, 0.01)
}

func TestLikeOnlyPublished(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, draft("Lentil soup"))
	require.NoError(t, err)

	err = svc.Like(ctx, created.ID)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeOperationNotAllowed, ae.Code)

	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusInReview))
	require.NoError(t, svc.SetStatus(ctx, created.ID, 1, StatusPublished))

	require.NoError(t, svc.Like(ctx, created.ID))
	require.NoError(t, svc.Like(ctx, created.ID))

	got, err := svc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.LikeCount)
}

func TestListFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	quick := draft("Quick oats")
	quick.PrepTime, quick.CookTime, quick.Calories = 2, 3, 200
	publish(t, svc, 1, quick)

	slow := draft("Beef stew")
	slow.Category, slow.Cuisine = "dinner", "french"
	slow.PrepTime, slow.CookTime, slow.Calories = 30, 120, 800
	publish(t, svc, 1, slow)

	// drafts never appear in the public listing
	if _, err := svc.Create(ctx, 1, draft("Unfinished idea")); err != nil {
		t.Fatal(err)
	}

	all, total, err := svc.List(ctx, ListFilter{}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, all, 2)

	fast, total, err := svc.List(ctx, ListFilter{MaxTotalMin: 10}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "Quick oats", fast[0].Title)

	light, _, err := svc.List(ctx, ListFilter{MaxCalories: 500}, 1, 10)
	require.NoError(t, err)
	require.Len(t, light, 1)
	require.Equal(t, "Quick oats", light[0].Title)

	french, _, err := svc.List(ctx, ListFilter{Cuisine: "french"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, french, 1)

	byWord, _, err := svc.List(ctx, ListFilter{Keyword: "stew"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, byWord, 1)
}

func TestFavoriteCountClampsAtZero(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created := publish(t, svc, 1, draft("Spinach omelette"))

	require.NoError(t, svc.AddFavoriteCount(ctx, created.ID, 1))
	require.NoError(t, svc.AddFavoriteCount(ctx, created.ID, -1))
	// a second decrement must not push the counter negative
	require.NoError(t, svc.AddFavoriteCount(ctx, created.ID, -1))

	got, err := svc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Zero(t, got.FavoriteCount)
}
