package user

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLogin resolves the login identifier as either username or email.
func (r *Repo) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) UpdateFields(ctx context.Context, id uint64, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// RecordLogin stamps the successful login.
func (r *Repo) RecordLogin(ctx context.Context, id uint64, ip string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_login_at": time.Now(),
			"last_login_ip": ip,
			"login_count":   gorm.Expr("login_count + 1"),
		}).Error
}
