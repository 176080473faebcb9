package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"task-tracker/internal/model"
)

// UserRepository is the credential store backed by the users table.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users by username: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return count > 0, nil
}

// Save inserts the user when it has no id yet, otherwise updates every column.
// A taken username or email yields ErrDuplicate.
func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Save(user).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("save user: %w", err)
	}
}

func (r *UserRepository) FindAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) DeleteByID(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.User{}, id).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find user by chat: %w", err)
	}
}

// LinkTelegramChat points chatID at username, detaching it from any other
// account first so a chat belongs to at most one user.
func (r *UserRepository) LinkTelegramChat(ctx context.Context, username string, chatID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("telegram_chat_id = ?", chatID).Update("telegram_chat_id", nil).Error; err != nil {
			return fmt.Errorf("detach chat: %w", err)
		}
		res := tx.Model(&model.User{}).Where("username = ?", username).Update("telegram_chat_id", chatID)
		if res.Error != nil {
			return fmt.Errorf("link chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UnlinkTelegramChat detaches chatID and reports whether any account had it.
func (r *UserRepository) UnlinkTelegramChat(ctx context.Context, chatID int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("telegram_chat_id = ?", chatID).Update("telegram_chat_id", nil)
	if res.Error != nil {
		return false, fmt.Errorf("unlink chat: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
