package user

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/auth"
	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/models"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

type Service struct {
	repo *Repo
	log  *logrus.Logger
}

func NewService(repo *Repo, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, log: log}
}

// Register creates an account in normal status.
func (s *Service) Register(ctx context.Context, username, email, password, nickname string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if !usernameRe.MatchString(username) {
		return nil, common.ErrValidation("username must be 3-20 letters, digits or underscores")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, common.ErrValidation("invalid email address")
	}
	if len(password) < 6 || len(password) > 72 {
		return nil, common.ErrValidation("password must be 6-72 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.ErrInternal(err)
	}

	u := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Nickname:     nickname,
		Status:       models.UserStatusNormal,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &common.AppError{
				Code: common.CodeUserExists, HTTPStatus: http.StatusConflict,
				Message: "username or email already registered",
			}
		}
		return nil, common.ErrInternal(err)
	}
	return u, nil
}

// Authenticate checks credentials and account state. The login may be a
// username or an email address. Unknown accounts and wrong passwords share
// one error so the API does not leak which part was wrong.
func (s *Service) Authenticate(ctx context.Context, login, password, clientIP string) (*models.User, error) {
	u, err := s.repo.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &common.AppError{
				Code: common.CodePasswordError, HTTPStatus: http.StatusUnauthorized,
				Message: "incorrect username or password",
			}
		}
		return nil, common.ErrInternal(err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, &common.AppError{
			Code: common.CodePasswordError, HTTPStatus: http.StatusUnauthorized,
			Message: "incorrect username or password",
		}
	}
	switch u.Status {
	case models.UserStatusDisabled:
		return nil, &common.AppError{Code: common.CodeUserDisabled, HTTPStatus: http.StatusForbidden, Message: "account is disabled"}
	case models.UserStatusLocked:
		return nil, &common.AppError{Code: common.CodeUserLocked, HTTPStatus: http.StatusForbidden, Message: "account is locked"}
	}

	if err := s.repo.RecordLogin(ctx, u.ID, clientIP); err != nil {
		s.log.WithError(err).Warn("failed to record login")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeUserNotFound, "user not found")
		}
		return nil, common.ErrInternal(err)
	}
	return u, nil
}

// ProfileUpdate carries the editable profile fields. Pointers distinguish
// "leave unchanged" from zero values.
type ProfileUpdate struct {
	Nickname           *string  `json:"nickname"`
	Avatar             *string  `json:"avatar"`
	Gender             *int     `json:"gender"`
	Height             *int     `json:"height"`
	Weight             *float64 `json:"weight"`
	ActivityLevel      *int     `json:"activity_level"`
	HealthGoal         *int     `json:"health_goal"`
	DietaryPreferences *string  `json:"dietary_preferences"`
	Allergies          *string  `json:"allergies"`
	CookingSkill       *int     `json:"cooking_skill"`
}

func (s *Service) UpdateProfile(ctx context.Context, id uint64, upd ProfileUpdate) (*models.User, error) {
	updates := map[string]any{}
	if upd.Nickname != nil {
		if len([]rune(*upd.Nickname)) > 50 {
			return nil, common.ErrValidation("nickname exceeds 50 characters")
		}
		updates["nickname"] = *upd.Nickname
	}
	if upd.Avatar != nil {
		updates["avatar"] = *upd.Avatar
	}
	if upd.Gender != nil {
		if *upd.Gender < models.GenderUnknown || *upd.Gender > models.GenderFemale {
			return nil, common.ErrValidation("unknown gender value")
		}
		updates["gender"] = *upd.Gender
	}
	if upd.Height != nil {
		if *upd.Height < 0 || *upd.Height > 300 {
			return nil, common.ErrValidation("height out of range")
		}
		updates["height"] = *upd.Height
	}
	if upd.Weight != nil {
		if *upd.Weight < 0 || *upd.Weight > 500 {
			return nil, common.ErrValidation("weight out of range")
		}
		updates["weight"] = *upd.Weight
	}
	if upd.ActivityLevel != nil {
		updates["activity_level"] = *upd.ActivityLevel
	}
	if upd.HealthGoal != nil {
		updates["health_goal"] = *upd.HealthGoal
	}
	if upd.DietaryPreferences != nil {
		updates["dietary_preferences"] = *upd.DietaryPreferences
	}
	if upd.Allergies != nil {
		updates["allergies"] = *upd.Allergies
	}
	if upd.CookingSkill != nil {
		updates["cooking_skill"] = *upd.CookingSkill
	}

	if len(updates) == 0 {
		return s.Get(ctx, id)
	}
	if _, err := s.repo.UpdateFields(ctx, id, updates); err != nil {
		return nil, common.ErrInternal(err)
	}
	return s.Get(ctx, id)
}

// ChangePassword verifies the old password before setting the new one.
func (s *Service) ChangePassword(ctx context.Context, id uint64, oldPassword, newPassword string) error {
	if len(newPassword) < 6 || len(newPassword) > 72 {
		return common.ErrValidation("password must be 6-72 characters")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return &common.AppError{
			Code: common.CodePasswordError, HTTPStatus: http.StatusUnauthorized,
			Message: "incorrect password",
		}
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return common.ErrInternal(err)
	}
	if _, err := s.repo.UpdateFields(ctx, id, map[string]any{"password_hash": hash}); err != nil {
		return common.ErrInternal(err)
	}
	return nil
}
