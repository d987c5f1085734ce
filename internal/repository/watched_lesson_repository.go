package repository

import (
	"context"
	"course_video_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WatchedLessonRepository 「已观看」标记的幂等写入与查询。
type WatchedLessonRepository struct {
	DB *gorm.DB
}

func NewWatchedLessonRepository(db *gorm.DB) *WatchedLessonRepository {
	return &WatchedLessonRepository{DB: db}
}

// CreateIfAbsent 条件插入：唯一索引冲突时不报错（输掉竞态的一方回读现存记录）。
// 无论先后，返回的都是该 (user, lesson) 对唯一的一条标记。
func (r *WatchedLessonRepository) CreateIfAbsent(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error) {
	marker := model.WatchedLesson{UserID: userID, LessonID: lessonID}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker).Error
	if err != nil {
		return nil, err
	}

	// DoNothing 命中冲突时不回填主键，统一回读保证拿到的是已存在的那条
	var existing model.WatchedLesson
	err = r.DB.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *WatchedLessonRepository) ListByUser(ctx context.Context, userID uint, lessonID uint) ([]model.WatchedLesson, error) {
	var markers []model.WatchedLesson
	q := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC")
	if lessonID != 0 {
		q = q.Where("lesson_id = ?", lessonID)
	}
	err := q.Find(&markers).Error
	return markers, err
}

// ListByUsers 管理端聚合查询；userIDs 为空表示不过滤用户。
func (r *WatchedLessonRepository) ListByUsers(ctx context.Context, userIDs []uint) ([]model.WatchedLesson, error) {
	var markers []model.WatchedLesson
	q := r.DB.WithContext(ctx).Order("user_id ASC, created_at ASC")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	err := q.Find(&markers).Error
	return markers, err
}
