package repository

import (
	"context"
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const lessonCacheTTL = 10 * time.Minute

// LessonRepository 课程目录查询（外部内容系统的数据），带 Redis 只读缓存。
type LessonRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewLessonRepository(db *gorm.DB, rdb *redis.Client) *LessonRepository {
	return &LessonRepository{DB: db, Redis: rdb}
}

func (r *LessonRepository) GetByID(ctx context.Context, lessonID uint) (*model.Lesson, error) {
	cacheKey := fmt.Sprintf("catalog:lesson:%d", lessonID)

	if r.Redis != nil {
		if cached, err := r.Redis.Get(ctx, cacheKey).Result(); err == nil {
			var lesson model.Lesson
			if json.Unmarshal([]byte(cached), &lesson) == nil {
				return &lesson, nil
			}
		}
	}

	var lesson model.Lesson
	err := r.DB.WithContext(ctx).First(&lesson, lessonID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}

	if r.Redis != nil {
		if data, err := json.Marshal(&lesson); err == nil {
			r.Redis.Set(ctx, cacheKey, data, lessonCacheTTL)
		}
	}

	return &lesson, nil
}

// GetTitles 批量查询课时标题，用于管理端联表展示。缺失的课时不报错，由调用方降级为占位标题。
func (r *LessonRepository) GetTitles(ctx context.Context, lessonIDs []uint) (map[uint]string, error) {
	titles := make(map[uint]string, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return titles, nil
	}

	var lessons []model.Lesson
	err := r.DB.WithContext(ctx).
		Select("id", "title").
		Where("id IN ?", lessonIDs).
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}

	for _, l := range lessons {
		titles[l.ID] = l.Title
	}
	return titles, nil
}
