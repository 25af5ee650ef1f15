package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/favorite"
	"github.com/nutrichat/nutrichat/internal/models"
	"github.com/nutrichat/nutrichat/internal/recipe"
)

// Connect opens the MySQL database and migrates the schema. Startup-fatal
// on failure.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&chat.ReplyJob{},
		&recipe.Recipe{},
		&favorite.Favorite{},
	)
}
