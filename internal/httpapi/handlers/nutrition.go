package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/common"
)

type nutritionReq struct {
	Description string `json:"description" binding:"required"`
}

// AnalyzeNutrition forwards a meal description to the nutrition AI
// application and returns the analysis text.
func (h *Handler) AnalyzeNutrition(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	var req nutritionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	analysis, err := h.AI.AnalyzeNutrition(c.Request.Context(), req.Description, userTagFor(uid))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"analysis": analysis})
}

// AnalyzeNutritionFile validates the uploaded image; image analysis itself
// is not available yet.
func (h *Handler) AnalyzeNutritionFile(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "a file upload is required")
		return
	}

	analysis, err := h.AI.AnalyzeNutritionFile(c.Request.Context(), file.Filename, file.Size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"analysis": analysis})
}

func userTagFor(uid uint64) string {
	return "user-" + strconv.FormatUint(uid, 10)
}
