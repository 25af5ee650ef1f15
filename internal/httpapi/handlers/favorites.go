package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/favorite"
)

type toggleFavoriteReq struct {
	FavoriteType int    `json:"favorite_type" binding:"required"`
	TargetID     uint64 `json:"target_id" binding:"required"`

	// optional snapshot of the target for list views
	TargetName        string `json:"target_name"`
	TargetDescription string `json:"target_description"`
	TargetImage       string `json:"target_image"`
	GroupName         string `json:"group_name"`
}

// ToggleFavorite flips the favorite state and returns whether the target
// is now favorited.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	var req toggleFavoriteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	favorited, err := h.Favorites.Toggle(c.Request.Context(), uid, req.FavoriteType, req.TargetID, favorite.TargetMeta{
		Name:        req.TargetName,
		Description: req.TargetDescription,
		Image:       req.TargetImage,
		GroupName:   req.GroupName,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"favorited": favorited})
}

func (h *Handler) ListFavorites(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	page, size := pageQuery(c)
	favType, _ := strconv.Atoi(c.Query("type"))

	favs, total, err := h.Favorites.List(c.Request.Context(), uid, favType, page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"favorites": favs, "total": total, "page": page})
}

func (h *Handler) IsFavorited(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	favType, _ := strconv.Atoi(c.Query("type"))
	targetID, _ := strconv.ParseUint(c.Query("target_id"), 10, 64)
	if targetID == 0 {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "target_id required")
		return
	}

	favorited, err := h.Favorites.IsFavorited(c.Request.Context(), uid, favType, targetID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"favorited": favorited})
}

type favoriteNotesReq struct {
	FavoriteType int    `json:"favorite_type" binding:"required"`
	TargetID     uint64 `json:"target_id" binding:"required"`
	Notes        string `json:"notes"`
	Priority     int    `json:"priority" binding:"required"`
}

func (h *Handler) UpdateFavoriteNotes(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	var req favoriteNotesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Favorites.SetNotes(c.Request.Context(), uid, req.FavoriteType, req.TargetID, req.Notes, req.Priority); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}
