package repository

import (
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserRepository 身份/角色/组织归属的只读查询。用户的增删改由外部身份系统负责。
type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) GetByID(userID uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListIDsByOrganization 返回某组织下全部用户ID
func (r *UserRepository) ListIDsByOrganization(orgID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.User{}).
		Where("organization_id = ?", orgID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen", time.Now()).Error
}
