package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
)

// AuthUserRepo is the credential store behind the local identity provider.
type AuthUserRepo struct {
	db *gorm.DB
}

func NewAuthUserRepo(db *gorm.DB) *AuthUserRepo { return &AuthUserRepo{db: db} }

func (r *AuthUserRepo) CreateAuthUser(ctx context.Context, u *models.AuthUser) error {
	return conn(ctx, r.db).Create(u).Error
}

func (r *AuthUserRepo) GetAuthUser(ctx context.Context, id string) (*models.AuthUser, error) {
	var u models.AuthUser
	if err := conn(ctx, r.db).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AuthUserRepo) GetAuthUserByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	var u models.AuthUser
	if err := conn(ctx, r.db).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AuthUserRepo) UpdateAuthUser(ctx context.Context, id string, values map[string]any) error {
	res := conn(ctx, r.db).Model(&models.AuthUser{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
