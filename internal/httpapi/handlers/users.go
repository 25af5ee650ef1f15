package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/httpapi/middleware"
	"github.com/nutrichat/nutrichat/internal/models"
	"github.com/nutrichat/nutrichat/internal/user"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok"})
}

type registerReq struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.Nickname)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	token, err := h.Sessions.CreateSession(c.Request.Context(), u.ID)
	if err != nil {
		common.FailErr(c, common.ErrInternal(err))
		return
	}

	common.OK(c, gin.H{"user": userView(u), "token": token})
}

type loginReq struct {
	Login    string `json:"login" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), req.Login, req.Password, c.ClientIP())
	if err != nil {
		common.FailErr(c, err)
		return
	}

	token, err := h.Sessions.CreateSession(c.Request.Context(), u.ID)
	if err != nil {
		common.FailErr(c, common.ErrInternal(err))
		return
	}

	common.OK(c, gin.H{"user": userView(u), "token": token})
}

func (h *Handler) Logout(c *gin.Context) {
	if token := middleware.SessionToken(c); token != "" {
		_ = h.Sessions.DeleteSession(c.Request.Context(), token)
	}
	common.OK(c, nil)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeLoginRequired, "login required")
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, userView(u))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeLoginRequired, "login required")
		return
	}

	var upd user.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	u, err := h.Users.UpdateProfile(c.Request.Context(), uid, upd)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, userView(u))
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeLoginRequired, "login required")
		return
	}

	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	if err := h.Users.ChangePassword(c.Request.Context(), uid, req.OldPassword, req.NewPassword); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

// userView strips internal fields from API responses.
func userView(u *models.User) gin.H {
	return gin.H{
		"id":                  u.ID,
		"username":            u.Username,
		"email":               u.Email,
		"nickname":            u.Nickname,
		"avatar":              u.Avatar,
		"gender":              u.Gender,
		"height":              u.Height,
		"weight":              u.Weight,
		"activity_level":      u.ActivityLevel,
		"health_goal":         u.HealthGoal,
		"dietary_preferences": u.DietaryPreferences,
		"allergies":           u.Allergies,
		"cooking_skill":       u.CookingSkill,
		"created_at":          u.CreatedAt,
	}
}
