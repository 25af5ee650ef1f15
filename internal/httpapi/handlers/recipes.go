package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/recipe"
)

func (h *Handler) CreateRecipe(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	var rec recipe.Recipe
	if err := c.ShouldBindJSON(&rec); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	created, err := h.Recipes.Create(c.Request.Context(), uid, &rec)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, created)
}

func (h *Handler) GetRecipe(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	rid, ok := idParam(c, "recipe_id")
	if !ok {
		return
	}
	rec, err := h.Recipes.Get(c.Request.Context(), rid, uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, rec)
}

func (h *Handler) UpdateRecipe(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	rid, ok := idParam(c, "recipe_id")
	if !ok {
		return
	}
	var rec recipe.Recipe
	if err := c.ShouldBindJSON(&rec); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	updated, err := h.Recipes.Update(c.Request.Context(), rid, uid, &rec)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, updated)
}

type recipeStatusReq struct {
	Status int `json:"status" binding:"required"`
}

func (h *Handler) SetRecipeStatus(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	rid, ok := idParam(c, "recipe_id")
	if !ok {
		return
	}
	var req recipeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Recipes.SetStatus(c.Request.Context(), rid, uid, req.Status); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) RateRecipe(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		return
	}
	rid, ok := idParam(c, "recipe_id")
	if !ok {
		return
	}
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Recipes.Rate(c.Request.Context(), rid, req.Rating); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) LikeRecipe(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		return
	}
	rid, ok := idParam(c, "recipe_id")
	if !ok {
		return
	}
	if err := h.Recipes.Like(c.Request.Context(), rid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ListRecipes(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		return
	}
	page, size := pageQuery(c)

	difficulty, _ := strconv.Atoi(c.Query("difficulty"))
	maxTime, _ := strconv.Atoi(c.Query("max_time"))
	maxCalories, _ := strconv.Atoi(c.Query("max_calories"))
	minRating, _ := strconv.ParseFloat(c.DefaultQuery("min_rating", "0"), 64)

	f := recipe.ListFilter{
		Category:    c.Query("category"),
		Cuisine:     c.Query("cuisine"),
		Difficulty:  difficulty,
		MaxTotalMin: maxTime,
		MaxCalories: maxCalories,
		MinRating:   minRating,
		Keyword:     c.Query("keyword"),
	}

	recipes, total, err := h.Recipes.List(c.Request.Context(), f, page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"recipes": recipes, "total": total, "page": page})
}

func (h *Handler) ListMyRecipes(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	page, size := pageQuery(c)
	recipes, total, err := h.Recipes.ListMine(c.Request.Context(), uid, page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"recipes": recipes, "total": total, "page": page})
}
