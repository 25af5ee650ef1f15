package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/httpapi/handlers"
	"github.com/nutrichat/nutrichat/internal/httpapi/middleware"
	"github.com/nutrichat/nutrichat/internal/store/rabbitmq"
	"github.com/nutrichat/nutrichat/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, sessions *redisstore.Store, rabbit *rabbitmq.Publisher, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, common.CodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, sessions, rabbit, log)

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/users", h.Register)
	r.POST("/login", h.Login)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(sessions))

	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.PUT("/me/profile", h.UpdateProfile)
	authed.PUT("/me/password", h.ChangePassword)

	// chat sessions
	authed.POST("/chat/sessions", h.CreateChatSession)
	authed.GET("/chat/sessions", h.ListChatSessions)
	authed.GET("/chat/sessions/search", h.SearchChatSessions)
	authed.PUT("/chat/sessions/:session_id/status", h.UpdateChatSessionStatus)
	authed.PUT("/chat/sessions/:session_id/pin", h.PinChatSession)
	authed.POST("/chat/sessions/:session_id/rating", h.RateChatSession)
	authed.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)

	// chat messages; sends are rate limited per user
	sends := authed.Group("/")
	sends.Use(middleware.ChatRateLimit(cfg.ChatRatePerMinute, cfg.ChatRateBurst))
	sends.POST("/chat/sessions/:session_id/messages", h.SendChatMessage)
	sends.POST("/chat/sessions/:session_id/messages/async", h.SendChatMessageAsync)

	authed.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	authed.PUT("/chat/sessions/:session_id/messages/read", h.BatchMarkMessagesRead)
	authed.POST("/chat/sessions/:session_id/stream", h.IngestStreamFragment)
	authed.GET("/chat/jobs/:job_id", h.GetChatJob)
	authed.PUT("/chat/messages/:message_id/read", h.MarkMessageRead)
	authed.PUT("/chat/messages/:message_id/recall", h.RecallMessage)
	authed.PUT("/chat/messages/:message_id/retry", h.RetryMessage)
	authed.POST("/chat/messages/:message_id/rating", h.RateMessage)
	authed.GET("/chat/messages/unread/count", h.UnreadMessageCount)

	// recipes
	authed.POST("/recipes", h.CreateRecipe)
	authed.GET("/recipes", h.ListRecipes)
	authed.GET("/recipes/mine", h.ListMyRecipes)
	authed.GET("/recipes/:recipe_id", h.GetRecipe)
	authed.PUT("/recipes/:recipe_id", h.UpdateRecipe)
	authed.PUT("/recipes/:recipe_id/status", h.SetRecipeStatus)
	authed.POST("/recipes/:recipe_id/rating", h.RateRecipe)
	authed.POST("/recipes/:recipe_id/like", h.LikeRecipe)

	// favorites
	authed.POST("/favorites/toggle", h.ToggleFavorite)
	authed.GET("/favorites", h.ListFavorites)
	authed.GET("/favorites/check", h.IsFavorited)
	authed.PUT("/favorites/notes", h.UpdateFavoriteNotes)

	// nutrition analysis
	authed.POST("/nutrition/analyze", h.AnalyzeNutrition)
	authed.POST("/nutrition/analyze/file", h.AnalyzeNutritionFile)

	return r
}
