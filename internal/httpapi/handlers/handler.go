package handlers

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/dify"
	"github.com/nutrichat/nutrichat/internal/favorite"
	"github.com/nutrichat/nutrichat/internal/recipe"
	"github.com/nutrichat/nutrichat/internal/store/rabbitmq"
	"github.com/nutrichat/nutrichat/internal/store/redisstore"
	"github.com/nutrichat/nutrichat/internal/user"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	Cfg      config.Config
	Sessions *redisstore.Store
	Rabbit   *rabbitmq.Publisher
	Log      *logrus.Logger

	Users     *user.Service
	Chat      *chat.Service
	Recipes   *recipe.Service
	Favorites *favorite.Service
	AI        *dify.Client
}

// NewHandler wires repositories and services onto the shared DB handle.
// rabbit may be nil; the async send endpoint then reports the queue as
// unavailable instead of failing at startup.
func NewHandler(db *gorm.DB, cfg config.Config, sessions *redisstore.Store, rabbit *rabbitmq.Publisher, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}

	aiClient := dify.NewClient(dify.Config{
		BaseURL:          cfg.DifyBaseURL,
		APIKey:           cfg.DifyAPIKey,
		NutritionBaseURL: cfg.DifyNutritionBaseURL,
		NutritionAPIKey:  cfg.DifyNutritionAPIKey,
		Timeout:          cfg.DifyTimeout,
	}, nil, log)

	recipeSvc := recipe.NewService(recipe.NewRepo(db), log)

	return &Handler{
		Cfg:      cfg,
		Sessions: sessions,
		Rabbit:   rabbit,
		Log:      log,

		Users:     user.NewService(user.NewRepo(db), log),
		Chat:      chat.NewService(chat.NewRepo(db), aiClient, log),
		Recipes:   recipeSvc,
		Favorites: favorite.NewService(favorite.NewRepo(db), recipeSvc, log),
		AI:        aiClient,
	}
}
