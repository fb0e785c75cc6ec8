package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"enterprise-kb/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "query user by username", "username = ?", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "query user by email", "email = ?", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	return r.first(ctx, "query user by id", "id = ?", id)
}

// SetSuperuser reports false when no user has the id.
func (r *UserRepository) SetSuperuser(ctx context.Context, id uint, superuser bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("is_superuser", superuser)
	if result.Error != nil {
		return false, fmt.Errorf("update user superuser failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// first returns nil, nil when no row matches.
func (r *UserRepository) first(ctx context.Context, op string, query string, args ...any) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return &user, nil
}
